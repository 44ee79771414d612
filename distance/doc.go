// Package distance provides float64 vector kernels for similarity scoring.
//
// Slot values are stored as IEEE-754 doubles, so every kernel here works on
// []float64 directly instead of converting rows.
//
// # Usage
//
//	sim := distance.Cosine(a, b)            // 0 if either side has zero norm
//	unit, ok := distance.NormalizeL2Copy(q) // ok is false for a zero vector
//	score := distance.Dot(unit, row)
package distance
