package distance

import (
	"math"
	"slices"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float64) float64 {
	var s0, s1, s2, s3 float64
	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for ; i < n; i++ {
		s0 += a[i] * b[i]
	}
	return s0 + s1 + s2 + s3
}

// Norm returns the L2 norm of v.
func Norm(v []float64) float64 {
	return math.Sqrt(Dot(v, v))
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float64) bool {
	if len(v) == 0 {
		return false
	}
	norm := Norm(v)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return false
	}
	inv := 1 / norm
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float64) ([]float64, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// CosineUnit returns the cosine similarity between a unit-length query and an
// arbitrary row. ok is false when the row has zero norm.
func CosineUnit(unitQuery, row []float64) (float64, bool) {
	norm := Norm(row)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return 0, false
	}
	return Dot(unitQuery, row) / norm, true
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero norm.
func Cosine(a, b []float64) float64 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// IsZero reports whether every element of v is exactly 0.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
