// Package embedding turns sentences into vectors by talking to an embedding worker,
// with optional memory and disk caching in front of it.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Split cuts a row-major buffer of len(buf)/dim rows into per-row slices sharing buf.
func Split(buf []float32, dim int) [][]float32 {
	if dim <= 0 {
		return nil
	}
	rows := make([][]float32, len(buf)/dim)
	for i := range rows {
		rows[i] = buf[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return rows
}
