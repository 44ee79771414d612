package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/vecsync/distance"
)

// RNG wraps a seeded random number generator. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{rand: rand.New(rand.NewSource(seed))}
}

// UniformVectors generates random vectors with values in range (0, 1].
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num int, dimensions int) [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float64, num*dimensions)
	vectors := make([][]float64, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = 1 - r.rand.Float64()
		}
		vectors[i] = vec
	}

	return vectors
}

// UniformRangeVectors generates random vectors with values in range [-1, 1).
func (r *RNG) UniformRangeVectors(num int, dimensions int) [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float64, num*dimensions)
	vectors := make([][]float64, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float64()*2 - 1
		}
		vectors[i] = vec
	}

	return vectors
}

// UnitVectors generates L2-normalized random vectors (on the hypersphere).
// Uses Gaussian distribution for uniform distribution on the sphere.
func (r *RNG) UnitVectors(num int, dimensions int) [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float64, num*dimensions)
	vectors := make([][]float64, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.NormFloat64()
		}
		if !distance.NormalizeL2InPlace(vec) {
			vec[0] = 1
		}
		vectors[i] = vec
	}

	return vectors
}

// ClusteredVectors generates vectors clustered around random unit centroids.
// spread is the standard deviation of the Gaussian noise added per component.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float64) [][]float64 {
	centroids := r.UnitVectors(clusters, dim)

	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float64, num*dim)
	vectors := make([][]float64, num)

	for i := range num {
		centroid := centroids[i%clusters]
		vec := data[i*dim : (i+1)*dim]
		for j := range dim {
			vec[j] = centroid[j] + r.rand.NormFloat64()*spread
		}
		vectors[i] = vec
	}

	return vectors
}

// SparseSlots picks n distinct slot indices in [0, capacity) and a non-zero
// value for each. Indices are returned in ascending order.
func (r *RNG) SparseSlots(n, capacity int) ([]int, []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n = min(n, capacity)
	perm := r.rand.Perm(capacity)[:n]
	indices := make([]int, 0, n)
	seen := make([]bool, capacity)
	for _, i := range perm {
		seen[i] = true
	}
	for i, ok := range seen {
		if ok {
			indices = append(indices, i)
		}
	}

	values := make([]float64, n)
	for i := range values {
		values[i] = (1 - r.rand.Float64()) * math.Copysign(1, r.rand.Float64()-0.5)
	}
	return indices, values
}
