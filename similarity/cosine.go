// Package similarity computes cosine similarity between a query vector and
// candidate vectors.
package similarity

import (
	"fmt"
	"math"

	"github.com/hupe1980/vecgo/distance"
	"github.com/poiesic/candirank/core"
)

// Cosine returns the cosine similarity between query and each candidate,
// aligned with the input order. Values are clamped to [-1, 1]. A zero vector
// or a NaN result yields 0 rather than NaN.
func Cosine(query core.Vector, candidates []core.Vector) ([]float32, error) {
	queryNorm := norm(query)
	out := make([]float32, len(candidates))
	for i, c := range candidates {
		if len(c) != len(query) {
			return nil, fmt.Errorf("%w: candidate %d has %d dimensions, query has %d",
				core.ErrDimensionMismatch, i, len(c), len(query))
		}
		out[i] = cosine(query, c, queryNorm)
	}
	return out, nil
}

// Pair returns the cosine similarity of two vectors.
func Pair(a, b core.Vector) (float32, error) {
	if err := core.CheckDim(len(b), len(a)); err != nil {
		return 0, err
	}
	return cosine(a, b, norm(a)), nil
}

func cosine(a, b core.Vector, aNorm float64) float32 {
	bNorm := norm(b)
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	sim := dot(a, b) / aNorm / bNorm
	switch {
	case math.IsNaN(sim):
		return 0
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	}
	return float32(sim)
}

func norm(v core.Vector) float64 {
	if len(v) == 0 {
		return 0
	}
	n := math.Sqrt(dot(v, v))
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

// dot uses the float32 kernel and redoes the sum in float64 when that
// overflows or underflows to zero.
func dot(a, b core.Vector) float64 {
	d := float64(distance.Dot(a, b))
	if d != 0 && !math.IsInf(d, 0) && !math.IsNaN(d) {
		return d
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
