// Package backup creates point-in-time copies of a slot store in the remote
// object store.
//
// A full backup pushes the store and then copies the primary object server
// side under a timestamped name. A sparse backup uploads a NumPy .npz archive
// holding only the occupied slots:
//
//	indices  int64[n]   slot index of every non-zero value
//	values   float64[n] the values
//	shape    int64[1]   store capacity
//
// Backups are named hextrix_memory_backup_<UTC 20060102T150405Z> with a .bin
// or .npz extension. Cadence is advisory: Due reports whether a backup is
// owed, and scheduling is left to the caller.
package backup
