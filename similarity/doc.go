// Package similarity ranks the occupied rows of a slotstore.Store by cosine
// similarity to a query vector.
//
// Rows are scored by a linear scan: the query is L2-normalized once, every
// occupied row is normalized on the fly, and a bounded heap keeps the best K.
// Rows and queries with zero norm never score. Results are ordered by
// descending similarity, ties by ascending row start slot.
package similarity
