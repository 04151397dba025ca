package embedding

import "math"

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	var h uint
	for _, c := range s {
		h = 31*h + uint(c)
	}
	return int(h >> 1)
}

// NormalizeL2Slice normalizes the slice in place to unit L2 norm.
func NormalizeL2Slice(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range x {
		x[i] *= norm
	}
}
