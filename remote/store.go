package remote

import (
	"context"
	"io"
	"os"
	"slices"
	"strings"
	"time"
)

// ErrNotFound is returned when an object does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	ID           string
	Name         string
	ModifiedTime time.Time
	Size         int64
}

// ObjectStore is a store of named binary objects.
type ObjectStore interface {
	// Create stores the contents of r as a new object called name, inside
	// the folder parentID when it is not empty, and returns its id.
	Create(ctx context.Context, name, parentID string, r io.Reader) (string, error)

	// Update replaces the whole content of an existing object.
	Update(ctx context.Context, id string, r io.Reader) error

	// Get opens the content of an object for reading.
	Get(ctx context.Context, id string) (io.ReadCloser, error)

	// Copy duplicates an object under a new name, server side where possible.
	Copy(ctx context.Context, id, newName, parentID string) (string, error)

	// List returns the objects whose name starts with nameFilter.
	// An empty filter lists everything.
	List(ctx context.Context, nameFilter string) ([]ObjectInfo, error)

	// Delete removes an object.
	Delete(ctx context.Context, id string) error
}

// MatchName reports whether name passes a List filter.
func MatchName(name, filter string) bool {
	return filter == "" || strings.HasPrefix(name, filter)
}

// SortNewestFirst orders objects by modification time, newest first, with
// name as the tie-breaker.
func SortNewestFirst(objs []ObjectInfo) {
	slices.SortStableFunc(objs, func(a, b ObjectInfo) int {
		if c := b.ModifiedTime.Compare(a.ModifiedTime); c != 0 {
			return c
		}
		return strings.Compare(b.Name, a.Name)
	})
}

// FindByName returns the objects named exactly name, newest first.
func FindByName(ctx context.Context, s ObjectStore, name string) ([]ObjectInfo, error) {
	objs, err := s.List(ctx, name)
	if err != nil {
		return nil, err
	}
	out := objs[:0]
	for _, o := range objs {
		if o.Name == name {
			out = append(out, o)
		}
	}
	SortNewestFirst(out)
	return out, nil
}
