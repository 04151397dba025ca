// Package models holds the request and response types of the HTTP API.
package models

import (
	"fmt"
	"strings"
)

// MaxBatchSize bounds the number of sentences accepted in one request.
const MaxBatchSize = 1024

// EncodeRequest asks for one embedding per sentence.
type EncodeRequest struct {
	Sentences []string `json:"sentences"`
}

// Validate rejects empty batches, oversized batches and sentences containing NUL,
// which the worker framing cannot carry.
func (r *EncodeRequest) Validate() error {
	if len(r.Sentences) == 0 {
		return fmt.Errorf("sentences cannot be empty")
	}
	if len(r.Sentences) > MaxBatchSize {
		return fmt.Errorf("too many sentences: %d (max %d)", len(r.Sentences), MaxBatchSize)
	}
	for i, s := range r.Sentences {
		if strings.IndexByte(s, 0) >= 0 {
			return fmt.Errorf("sentence %d contains a NUL byte", i)
		}
	}
	return nil
}

// EncodeResponse carries embeddings in request order.
type EncodeResponse struct {
	Dimensions int         `json:"dimensions"`
	Embeddings [][]float32 `json:"embeddings"`
	QueryTime  int64       `json:"query_time_ms"`
}

// SimilarRequest asks for pairwise cosine similarity of the sentences.
type SimilarRequest struct {
	Sentences []string `json:"sentences"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// SimilarPair is one scored pair of sentences.
type SimilarPair struct {
	Sentence string  `json:"sentence"`
	Other    string  `json:"other"`
	Score    float64 `json:"score"`
}

// SimilarResponse lists pairs at or above the threshold, best first per sentence.
type SimilarResponse struct {
	Threshold float64       `json:"threshold"`
	Pairs     []SimilarPair `json:"pairs"`
}
