package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// VectorStore persists embeddings across restarts.
type VectorStore interface {
	GetEmbeddings(ctx context.Context, sentences []string) (map[string][]float32, error)
	PutEmbeddings(ctx context.Context, embeddings map[string][]float32) error
}

// CachedEmbedder answers from an in-memory LRU, then an optional VectorStore,
// and sends only the remaining sentences to the underlying embedder in one batch.
type CachedEmbedder struct {
	next   Embedder
	cache  *EmbeddingCache
	store  VectorStore
	logger *zap.Logger
}

// NewCachedEmbedder wraps next. store may be nil.
func NewCachedEmbedder(next Embedder, cacheSize int, store VectorStore, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		next:   next,
		cache:  NewEmbeddingCache(cacheSize),
		store:  store,
		logger: logger,
	}
}

// Embed returns the embedding for text.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch returns one embedding per text, in input order.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	// sentence -> positions still missing
	missing := make(map[string][]int)
	var order []string
	for i, t := range texts {
		if v, ok := e.cache.Get(t); ok {
			out[i] = v
			continue
		}
		if _, seen := missing[t]; !seen {
			order = append(order, t)
		}
		missing[t] = append(missing[t], i)
	}
	if len(order) == 0 {
		return out, nil
	}

	if e.store != nil {
		stored, err := e.store.GetEmbeddings(ctx, order)
		if err != nil {
			e.logger.Warn("embedding store lookup failed", zap.Error(err))
		} else if len(stored) > 0 {
			remaining := order[:0:0]
			for _, t := range order {
				v, ok := stored[t]
				if !ok || len(v) != e.next.Dimensions() {
					remaining = append(remaining, t)
					continue
				}
				e.fill(out, missing[t], t, v)
			}
			order = remaining
		}
	}
	if len(order) == 0 {
		return out, nil
	}

	fresh, err := e.next.EmbedBatch(ctx, order)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(order) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d texts", len(fresh), len(order))
	}
	toStore := make(map[string][]float32, len(order))
	for i, t := range order {
		e.fill(out, missing[t], t, fresh[i])
		toStore[t] = fresh[i]
	}
	if e.store != nil {
		if err := e.store.PutEmbeddings(ctx, toStore); err != nil {
			e.logger.Warn("embedding store write failed", zap.Int("count", len(toStore)), zap.Error(err))
		}
	}
	e.logger.Debug("embedded batch",
		zap.Int("requested", len(texts)),
		zap.Int("computed", len(order)),
	)
	return out, nil
}

func (e *CachedEmbedder) fill(out [][]float32, positions []int, text string, v []float32) {
	e.cache.Set(text, v)
	for _, p := range positions {
		out[p] = v
	}
}

// Dimensions returns the embedding dimension of the wrapped embedder.
func (e *CachedEmbedder) Dimensions() int {
	return e.next.Dimensions()
}

// Close closes the wrapped embedder.
func (e *CachedEmbedder) Close() error {
	return e.next.Close()
}
