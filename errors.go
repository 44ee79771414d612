package vecsync

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecsync/backup"
	"github.com/hupe1980/vecsync/remote"
	"github.com/hupe1980/vecsync/remotesync"
	"github.com/hupe1980/vecsync/similarity"
	"github.com/hupe1980/vecsync/slotstore"
)

var (
	// ErrIOFailure wraps the cause of degraded mode. It is never returned by
	// Store, Read or Search; see Engine.DegradedReason.
	ErrIOFailure = errors.New("local backing file unavailable")

	// ErrCapacityExhausted is returned when no free slot is left and the
	// eviction policy is "error".
	ErrCapacityExhausted = errors.New("capacity exhausted")

	// ErrRemoteUnavailable is returned by push, pull and backup operations
	// when authentication, the network or a timeout failed.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrCorruptRemotePayload is returned when downloaded bytes do not fit the store.
	ErrCorruptRemotePayload = errors.New("corrupt remote payload")

	// ErrNotInitialized is returned after Close.
	ErrNotInitialized = errors.New("not initialized")

	// ErrInvalidArgument is returned for malformed arguments.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfRange is returned for a slot index outside the store.
	ErrOutOfRange = errors.New("index out of range")

	// ErrZeroVector is returned when storing an all-zero vector, which would
	// read back as free space.
	ErrZeroVector = errors.New("all-zero vector")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrBusy is returned when another remote operation held the remote slot
	// until the context ended.
	ErrBusy = errors.New("remote operation in progress")

	// ErrConcurrentModification is returned when another writer pushed the
	// same generation first.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrPullRequired is returned by pushes and full backups while the local
	// file was restored from ".bak" and no pull has succeeded since.
	ErrPullRequired = errors.New("pull required before push")

	// ErrNotFound is returned for unknown backups.
	ErrNotFound = errors.New("not found")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// Is makes errors.Is(err, ErrInvalidArgument) hold.
func (e *ErrDimensionMismatch) Is(target error) bool { return target == ErrInvalidArgument }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Dimension normalization.
	var dm *slotstore.DimensionError
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var sdm *similarity.ErrDimensionMismatch
	if errors.As(err, &sdm) {
		return &ErrDimensionMismatch{Expected: sdm.Expected, Actual: sdm.Actual, cause: err}
	}

	// Remote side. Busy and corruption are more specific than unavailable.
	switch {
	case errors.Is(err, remotesync.ErrBusy):
		return fmt.Errorf("%w: %w", ErrBusy, err)
	case errors.Is(err, remotesync.ErrPullRequired):
		return fmt.Errorf("%w: %w", ErrPullRequired, err)
	case errors.Is(err, remotesync.ErrCorruptRemotePayload), errors.Is(err, backup.ErrInvalidArchive):
		return fmt.Errorf("%w: %w", ErrCorruptRemotePayload, err)
	case errors.Is(err, remote.ErrConcurrentModification):
		return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
	case errors.Is(err, remotesync.ErrRemoteUnavailable):
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	case errors.Is(err, remote.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Local store.
	switch {
	case errors.Is(err, slotstore.ErrCapacityExhausted):
		return fmt.Errorf("%w: %w", ErrCapacityExhausted, err)
	case errors.Is(err, slotstore.ErrZeroVector):
		return fmt.Errorf("%w: %w", ErrZeroVector, err)
	case errors.Is(err, slotstore.ErrOutOfRange):
		return fmt.Errorf("%w: %w", ErrOutOfRange, err)
	case errors.Is(err, slotstore.ErrNotInitialized):
		return fmt.Errorf("%w: %w", ErrNotInitialized, err)
	case errors.Is(err, slotstore.ErrInvalidArgument):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, similarity.ErrInvalidK):
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	return err
}
