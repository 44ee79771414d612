package slotstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when the store is closed or between Swap steps.
	ErrNotInitialized = errors.New("slotstore: not initialized")

	// ErrInvalidArgument is returned for malformed arguments (length mismatch, negative counts).
	ErrInvalidArgument = errors.New("slotstore: invalid argument")

	// ErrOutOfRange is returned when an index lies outside [0, Capacity).
	ErrOutOfRange = errors.New("slotstore: index out of range")

	// ErrCapacityExhausted is returned when the free space cannot satisfy an
	// allocation and the policy is PolicyError.
	ErrCapacityExhausted = errors.New("slotstore: capacity exhausted")

	// ErrZeroVector is returned when a record is all zeros and would read back as free space.
	ErrZeroVector = errors.New("slotstore: all-zero record is indistinguishable from free space")

	// ErrSizeMismatch is returned when a backing file or payload does not match the capacity.
	ErrSizeMismatch = errors.New("slotstore: size does not match capacity")
)

// IndexError reports an out-of-range slot index.
type IndexError struct {
	Index    int
	Capacity int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("slotstore: index %d out of range [0, %d)", e.Index, e.Capacity)
}

func (e *IndexError) Unwrap() error { return ErrOutOfRange }

// DimensionError reports a record whose length differs from the row width.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("slotstore: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionError) Unwrap() error { return ErrInvalidArgument }

// CapacityError reports an allocation that could not be satisfied.
type CapacityError struct {
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("slotstore: capacity exhausted: requested %d, %d free", e.Requested, e.Available)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExhausted }

// IOError describes why the store runs in degraded (heap) mode.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("slotstore: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
