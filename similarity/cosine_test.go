package similarity

import (
	"math"
	"testing"

	"github.com/hupe1980/vecgo/testutil"
	"github.com/poiesic/candirank/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	query := core.Vector{1, 0}

	sims, err := Cosine(query, []core.Vector{
		{2, 0},
		{0, 3},
		{-1, 0},
		{1, 1},
	})
	require.NoError(t, err)
	require.Len(t, sims, 4)

	assert.InDelta(t, 1.0, sims[0], 1e-6)
	assert.InDelta(t, 0.0, sims[1], 1e-6)
	assert.InDelta(t, -1.0, sims[2], 1e-6)
	assert.InDelta(t, 1/math.Sqrt2, sims[3], 1e-6)
}

func TestCosine_ZeroAndNaN(t *testing.T) {
	t.Run("zero candidate", func(t *testing.T) {
		sims, err := Cosine(core.Vector{1, 2}, []core.Vector{{0, 0}})
		require.NoError(t, err)
		assert.Equal(t, float32(0), sims[0])
	})

	t.Run("zero query", func(t *testing.T) {
		sims, err := Cosine(core.Vector{0, 0}, []core.Vector{{1, 2}})
		require.NoError(t, err)
		assert.Equal(t, float32(0), sims[0])
	})

	t.Run("NaN component", func(t *testing.T) {
		nan := float32(math.NaN())
		sims, err := Cosine(core.Vector{1, 2}, []core.Vector{{nan, 1}})
		require.NoError(t, err)
		assert.Equal(t, float32(0), sims[0])
	})
}

func TestCosine_ExtremeMagnitudes(t *testing.T) {
	tests := []struct {
		name  string
		query core.Vector
		cand  core.Vector
		want  float32
	}{
		{"large opposite", core.Vector{1e20, 1e20}, core.Vector{-1e20, -1e20}, -1},
		{"large parallel", core.Vector{1e20, 1e20}, core.Vector{3e20, 3e20}, 1},
		{"large orthogonal", core.Vector{1e20, 0}, core.Vector{0, 1e20}, 0},
		{"tiny parallel", core.Vector{1e-30, 1e-30}, core.Vector{2e-30, 2e-30}, 1},
		{"mixed scale", core.Vector{1e20, 1e20}, core.Vector{1, 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sims, err := Cosine(tt.query, []core.Vector{tt.cand})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, sims[0], 1e-6)

			pair, err := Pair(tt.query, tt.cand)
			require.NoError(t, err)
			assert.Equal(t, sims[0], pair)
		})
	}
}

func TestCosine_DimensionMismatch(t *testing.T) {
	_, err := Cosine(core.Vector{1, 2}, []core.Vector{{1, 2}, {1, 2, 3}})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = Pair(core.Vector{1}, core.Vector{1, 2})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestCosine_Empty(t *testing.T) {
	sims, err := Cosine(core.Vector{1, 2}, nil)
	require.NoError(t, err)
	assert.Empty(t, sims)
}

func TestCosine_Range(t *testing.T) {
	rng := testutil.NewRNG(42)
	vectors := rng.UniformRangeVectors(200, 12)
	query := core.Vector(vectors[0])

	candidates := make([]core.Vector, len(vectors))
	for i, v := range vectors {
		candidates[i] = v
	}

	sims, err := Cosine(query, candidates)
	require.NoError(t, err)
	for i, s := range sims {
		assert.GreaterOrEqual(t, s, float32(-1), "row %d", i)
		assert.LessOrEqual(t, s, float32(1), "row %d", i)
	}
	assert.InDelta(t, 1.0, sims[0], 1e-5)

	pair, err := Pair(query, candidates[5])
	require.NoError(t, err)
	assert.Equal(t, sims[5], pair)
}
