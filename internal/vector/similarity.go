// Package vector provides similarity helpers for embedding vectors.
package vector

import (
	"math"
	"sort"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b, or 0 if either is a zero vector.
func Cosine(a, b []float32) float64 {
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return InnerProduct(a, b) / (na * nb)
}

// Pair is the similarity between rows I and J of a batch.
type Pair struct {
	I     int     `json:"i"`
	J     int     `json:"j"`
	Score float64 `json:"score"`
}

// Neighbours returns, for every row i, the pairs (i, j) with score >= threshold,
// highest score first. Each row includes itself.
func Neighbours(embeddings [][]float32, threshold float64) [][]Pair {
	out := make([][]Pair, len(embeddings))
	for i := range embeddings {
		var row []Pair
		for j := range embeddings {
			score := Cosine(embeddings[i], embeddings[j])
			if score < threshold {
				continue
			}
			row = append(row, Pair{I: i, J: j, Score: score})
		}
		sort.SliceStable(row, func(a, b int) bool { return row[a].Score > row[b].Score })
		out[i] = row
	}
	return out
}
