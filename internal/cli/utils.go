// Package cli provides output formatting for the bertd command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/bertlib/internal/vector"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// EncodedSentence is one row of encode output.
type EncodedSentence struct {
	Sentence  string    `json:"sentence"`
	Embedding []float32 `json:"embedding"`
}

// WriteEmbeddings writes one line per sentence with its index and first value in
// text mode, or every full vector in JSON mode.
func WriteEmbeddings(w io.Writer, sentences []string, embeddings [][]float32, format OutputFormat) error {
	if len(sentences) != len(embeddings) {
		return fmt.Errorf("have %d embeddings for %d sentences", len(embeddings), len(sentences))
	}
	switch format {
	case OutputJSON:
		rows := make([]EncodedSentence, len(sentences))
		for i := range sentences {
			rows[i] = EncodedSentence{Sentence: sentences[i], Embedding: embeddings[i]}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	default:
		for i, emb := range embeddings {
			first := float32(0)
			if len(emb) > 0 {
				first = emb[0]
			}
			fmt.Fprintf(w, "%d %v\t%s\n", i, first, Truncate(sentences[i], 60))
		}
		return nil
	}
}

// WriteNeighbours writes, per sentence, every sentence at or above the threshold
// with its cosine score, best first.
func WriteNeighbours(w io.Writer, sentences []string, rows [][]vector.Pair, format OutputFormat) error {
	if format == OutputJSON {
		type neighbour struct {
			Sentence string  `json:"sentence"`
			Other    string  `json:"other"`
			Score    float64 `json:"score"`
		}
		out := make([]neighbour, 0)
		for _, row := range rows {
			for _, p := range row {
				out = append(out, neighbour{Sentence: sentences[p.I], Other: sentences[p.J], Score: p.Score})
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	for _, row := range rows {
		for _, p := range row {
			fmt.Fprintf(w, "%s \t\t %s \t\t Score: %.4f\n", sentences[p.I], sentences[p.J], p.Score)
		}
	}
	return nil
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
