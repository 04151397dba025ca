package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// MaxRequestSentences is the largest batch ReadRequest accepts.
const MaxRequestSentences = 1 << 16

// EncodeFunc computes one embedding per sentence.
type EncodeFunc func(sentences []string) ([][]float32, error)

// ReadRequest reads one request. It returns io.EOF when the stream ends cleanly
// before a new request starts.
func ReadRequest(r *bufio.Reader) ([]string, error) {
	if _, err := r.Peek(1); errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	tok, err := ReadToken(r)
	if err != nil {
		return nil, fmt.Errorf("batch size: %w", err)
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 0 || n > MaxRequestSentences {
		return nil, fmt.Errorf("%w: batch size %q", ErrMalformedToken, tok)
	}
	sentences := make([]string, n)
	for i := range sentences {
		if sentences[i], err = ReadToken(r); err != nil {
			return nil, fmt.Errorf("sentence %d: %w", i, err)
		}
	}
	return sentences, nil
}

// WriteResponse writes every value of every embedding as a terminated token and flushes.
func WriteResponse(w *bufio.Writer, embeddings [][]float32) error {
	buf := make([]byte, 0, 16)
	for _, emb := range embeddings {
		for _, v := range emb {
			buf = strconv.AppendFloat(buf[:0], float64(v), 'g', 8, 32)
			buf = append(buf, Terminator)
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// Serve answers requests from r on w until r reaches EOF at a request boundary.
// Each embedding returned by fn must have exactly dim values.
func Serve(r io.Reader, w io.Writer, dim int, fn EncodeFunc) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	for {
		sentences, err := ReadRequest(br)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		embeddings, err := fn(sentences)
		if err != nil {
			return fmt.Errorf("encode batch of %d: %w", len(sentences), err)
		}
		if len(embeddings) != len(sentences) {
			return fmt.Errorf("encoder returned %d embeddings for %d sentences", len(embeddings), len(sentences))
		}
		for i, emb := range embeddings {
			if len(emb) != dim {
				return fmt.Errorf("embedding %d has %d values, want %d", i, len(emb), dim)
			}
		}
		if err := WriteResponse(bw, embeddings); err != nil {
			return err
		}
	}
}
