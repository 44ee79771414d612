// Package slotstore implements the fixed-capacity on-disk float64 slot array.
//
// A Store owns one backing file of exactly Capacity*8 bytes: slot i is the
// little-endian IEEE-754 double at byte offset i*8. There is no header, so the
// file stays byte-compatible with flat dumps produced by other tools. The file
// is mapped MAP_SHARED; if it cannot be created or mapped, the store falls back
// to a heap array of the same size and reports Degraded() instead of failing.
//
// # Slots, rows and occupancy
//
// A slot holding exactly 0.0 is free. Vectors occupy rows of Dimension
// contiguous slots, row r covering [r*D, (r+1)*D). A row is occupied when any
// of its slots is non-zero. Occupied rows are tracked in a roaring bitmap that
// is rebuilt from the slot values on open and kept current on every write, so
// the zero sentinel stays the only source of truth.
//
// # Allocation
//
// Allocate and AllocateRows scan for free space from slot 0. When there is not
// enough, the EvictionPolicy decides between failing with ErrCapacityExhausted,
// overwriting the lowest indices, or overwriting least recently used rows.
// Allocation does not reserve: two Allocate calls without an intervening Write
// return the same indices.
//
// # Concurrency
//
// Reads may run concurrently; writes, Swap and Close are exclusive. Swap is the
// hook the sync engine uses to replace the backing file: it drops the mapping,
// lets the caller rename files, and maps whatever is at the path afterwards.
package slotstore
