// Package testutil provides testing utilities for vecsync.
//
// This package is intended for use in tests only. It provides a seeded,
// thread-safe RNG with generators for vectors and sparse slot contents.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UniformVectors(100, 16)  // uniform (0, 1], never all-zero
//	units := rng.UnitVectors(100, 16)    // on the unit hypersphere
//
// # Sparse Store Contents
//
//	indices, values := rng.SparseSlots(50, capacity)
package testutil
