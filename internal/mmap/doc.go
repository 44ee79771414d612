// Package mmap provides writable memory-mapped file access for the slot store.
//
// # Overview
//
// The slot store keeps its whole backing file mapped MAP_SHARED so that writes
// to the returned byte slice land in the page cache and reach the file on
// Sync (msync) or when the kernel writes dirty pages back.
//
// # Usage
//
//	f, _ := os.OpenFile("memory.bin", os.O_RDWR, 0o644)
//	m, err := mmap.Map(f, size)
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes()      // read/write view of the file
//	_ = m.Sync()           // force dirty pages to disk
//	_ = m.Advise(mmap.AccessRandom)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), msync(2) and madvise(2)
//   - Windows: CreateFileMapping/MapViewOfFile with FlushViewOfFile (Advise is a no-op)
//
// # Thread Safety
//
// Close is idempotent. Callers must not touch Bytes() after Close returns; the
// slot store guarantees this by dropping every reference before unmapping.
package mmap
