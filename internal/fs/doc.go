// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with read/write/sync capabilities and a descriptor for mmap
//   - [FileSystem]: filesystem operations (open, remove, rename, stat)
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility that fails opens, writes, syncs, closes, renames or removes
//
// The pull path of the sync engine depends on rename ordering for its crash
// guarantees; FaultyFS lets tests stop that sequence at any step.
//
// # Design Notes
//
// This package intentionally does NOT include context.Context parameters.
// Local filesystem operations are not interruptible at the syscall level.
// Slow remote operations go through the remote package, which has context support.
package fs
