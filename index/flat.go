package index

import (
	"container/heap"
	"fmt"
	"math"
	"slices"

	"github.com/hupe1980/vecgo/distance"
	"github.com/poiesic/candirank/core"
)

// Neighbor is one search hit: the pool row of the candidate and its squared
// L2 distance to the query.
type Neighbor struct {
	Row      int
	Distance float32
}

// Flat is an exact L2 index over a fixed set of vectors.
// It is immutable after construction and safe for concurrent searches.
type Flat struct {
	vectors []core.Vector
	dim     int
}

// NewFlat builds an index over vectors. The slice is retained, not copied.
// Returns core.ErrEmptyIndex for an empty input and core.ErrDimensionMismatch
// when vectors do not share one dimensionality.
func NewFlat(vectors []core.Vector) (*Flat, error) {
	if len(vectors) == 0 {
		return nil, core.ErrEmptyIndex
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: row 0 has no dimensions", core.ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d dimensions, expected %d", core.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return &Flat{vectors: vectors, dim: dim}, nil
}

// NewFlatFromPool builds an index over the vectors of a pool, in row order.
func NewFlatFromPool(pool *core.Pool) (*Flat, error) {
	return NewFlat(pool.Vectors())
}

// Dim returns the dimensionality of the indexed vectors.
func (f *Flat) Dim() int {
	return f.dim
}

// Len returns the number of indexed vectors.
func (f *Flat) Len() int {
	return len(f.vectors)
}

// Search returns the k nearest vectors to query, ascending by distance.
// The result has min(k, Len()) entries.
func (f *Flat) Search(query core.Vector, k int) ([]Neighbor, error) {
	if err := core.CheckDim(len(query), f.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Neighbor{}, nil
	}
	if k > len(f.vectors) {
		k = len(f.vectors)
	}

	// Bounded max-heap holding the k best seen so far.
	h := make(neighborHeap, 0, k)
	for row, v := range f.vectors {
		n := Neighbor{Row: row, Distance: sanitize(distance.SquaredL2(query, v))}
		if len(h) < k {
			heap.Push(&h, n)
			continue
		}
		if less(n, h[0]) {
			h[0] = n
			heap.Fix(&h, 0)
		}
	}

	out := []Neighbor(h)
	slices.SortFunc(out, compare)
	return out, nil
}

// sanitize maps NaN distances to +Inf so they rank last.
func sanitize(d float32) float32 {
	if math.IsNaN(float64(d)) {
		return float32(math.Inf(1))
	}
	return d
}

func less(a, b Neighbor) bool {
	return compare(a, b) < 0
}

// compare orders by distance, then by row.
func compare(a, b Neighbor) int {
	switch {
	case a.Distance < b.Distance:
		return -1
	case a.Distance > b.Distance:
		return 1
	case a.Row < b.Row:
		return -1
	case a.Row > b.Row:
		return 1
	}
	return 0
}

// neighborHeap is a max-heap: the worst neighbor sits at the root.
type neighborHeap []Neighbor

func (h neighborHeap) Len() int           { return len(h) }
func (h neighborHeap) Less(i, j int) bool { return less(h[j], h[i]) }
func (h neighborHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *neighborHeap) Push(x any) {
	*h = append(*h, x.(Neighbor))
}

func (h *neighborHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
