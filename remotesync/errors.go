package remotesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/vecsync/resource"
)

var (
	// ErrRemoteUnavailable is matched by every error caused by the remote
	// side: a failed connector, a network error or an expired timeout.
	ErrRemoteUnavailable = errors.New("remotesync: remote unavailable")

	// ErrNotAuthenticated means no successful Authenticate happened yet.
	ErrNotAuthenticated = fmt.Errorf("%w: not authenticated", ErrRemoteUnavailable)

	// ErrBusy means the remote slot was not free before the context ended.
	ErrBusy = errors.New("remotesync: another remote operation is running")

	// ErrPullRequired means the local file may be older than the remote
	// object and must not overwrite it before a successful Pull.
	ErrPullRequired = errors.New("remotesync: pull required before push")

	// ErrCorruptRemotePayload means a download does not match the store
	// capacity or the checksum recorded for it.
	ErrCorruptRemotePayload = errors.New("remotesync: corrupt remote payload")
)

// RemoteError wraps a failure of a remote operation. It matches
// ErrRemoteUnavailable and unwraps to the underlying cause.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remotesync: %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRemoteUnavailable) hold for every RemoteError.
func (e *RemoteError) Is(target error) bool { return target == ErrRemoteUnavailable }

// AcquireSlot waits for the remote slot of rc, reporting ErrBusy when ctx
// ends first.
func AcquireSlot(ctx context.Context, rc *resource.Controller) error {
	if err := rc.AcquireRemote(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return nil
}

func remoteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, Err: err}
}

// PayloadError describes a rejected download.
type PayloadError struct {
	ObjectID string
	Size     int64
	Expected int64
	CRC32C   uint32
	Want     uint32
}

func (e *PayloadError) Error() string {
	if e.Size != e.Expected {
		return fmt.Sprintf("remotesync: object %s has %d bytes, store needs %d", e.ObjectID, e.Size, e.Expected)
	}
	return fmt.Sprintf("remotesync: object %s checksum %08x, ledger has %08x", e.ObjectID, e.CRC32C, e.Want)
}

func (e *PayloadError) Unwrap() error { return ErrCorruptRemotePayload }
