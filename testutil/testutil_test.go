package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsync/distance"
)

func TestUniformVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UniformVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))
	for _, vec := range v {
		for _, x := range vec {
			assert.Greater(t, x, 0.0)
			assert.LessOrEqual(t, x, 1.0)
		}
	}
}

func TestUniformRangeVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UniformRangeVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))
	assert.LessOrEqual(t, v[0][0], 1.0)
	assert.GreaterOrEqual(t, v[1][0], -1.0)
}

func TestUnitVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UnitVectors(8, 32)

	require.Len(t, v, 8)
	for _, vec := range v {
		assert.InDelta(t, 1.0, distance.Norm(vec), 1e-9)
	}
}

func TestClusteredVectors(t *testing.T) {
	rng := NewRNG(1)

	v := rng.ClusteredVectors(20, 8, 2, 0.01)

	require.Len(t, v, 20)
	// Members of the same cluster point the same way.
	assert.Greater(t, distance.Cosine(v[0], v[2]), 0.9)
}

func TestSparseSlots(t *testing.T) {
	rng := NewRNG(3)

	indices, values := rng.SparseSlots(10, 100)

	require.Len(t, indices, 10)
	require.Len(t, values, 10)
	assert.IsIncreasing(t, indices)
	for _, v := range values {
		assert.NotZero(t, v)
	}
}

func TestNewRNG_Deterministic(t *testing.T) {
	a := NewRNG(99).UniformVectors(2, 4)
	b := NewRNG(99).UniformVectors(2, 4)
	assert.Equal(t, a, b)
}
