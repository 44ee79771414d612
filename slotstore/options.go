package slotstore

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/hupe1980/vecsync/internal/fs"
)

// SlotSize is the size of one slot in bytes.
const SlotSize = 8

// EvictionPolicy selects what Allocate does when free space runs out.
type EvictionPolicy int

const (
	// PolicyOverwriteOldest hands out the lowest indices, overwriting whatever they hold.
	PolicyOverwriteOldest EvictionPolicy = iota
	// PolicyError fails the allocation with ErrCapacityExhausted.
	PolicyError
	// PolicyOverwriteLRU overwrites the rows that were read or written least recently.
	PolicyOverwriteLRU
)

func (p EvictionPolicy) String() string {
	switch p {
	case PolicyOverwriteOldest:
		return "overwrite_oldest"
	case PolicyError:
		return "error"
	case PolicyOverwriteLRU:
		return "overwrite_lru"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// ParseEvictionPolicy parses the configuration spelling of a policy.
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite_oldest", "oldest":
		return PolicyOverwriteOldest, nil
	case "error":
		return PolicyError, nil
	case "overwrite_lru", "lru":
		return PolicyOverwriteLRU, nil
	default:
		return 0, fmt.Errorf("%w: unknown eviction policy %q", ErrInvalidArgument, s)
	}
}

// Options configures a Store.
type Options struct {
	// Capacity is the number of slots. Must be a positive multiple of Dimension.
	Capacity int

	// Dimension is the row width in slots. If 0, defaults to 1.
	Dimension int

	// Policy decides allocation behaviour when free space runs out.
	Policy EvictionPolicy

	// FS is the filesystem used for the backing file. If nil, fs.Default is used.
	FS fs.FileSystem

	// Logger receives degraded-mode and eviction warnings. May be nil.
	Logger *slog.Logger
}

// CapacityForBytes converts a byte budget into a slot capacity that is a
// multiple of dim.
func CapacityForBytes(bytes int64, dim int) int {
	if dim <= 0 {
		dim = 1
	}
	slots := bytes / SlotSize
	return int(slots - slots%int64(dim))
}

func (o *Options) normalize() error {
	if o.Dimension == 0 {
		o.Dimension = 1
	}
	if o.Dimension < 0 {
		return fmt.Errorf("%w: dimension %d", ErrInvalidArgument, o.Dimension)
	}
	if o.Capacity <= 0 || o.Capacity%o.Dimension != 0 {
		return fmt.Errorf("%w: capacity %d must be a positive multiple of dimension %d", ErrInvalidArgument, o.Capacity, o.Dimension)
	}
	if o.Capacity/o.Dimension > math.MaxUint32 {
		return fmt.Errorf("%w: %d rows exceed the occupancy index range", ErrInvalidArgument, o.Capacity/o.Dimension)
	}
	if o.Capacity > math.MaxInt/SlotSize {
		return fmt.Errorf("%w: capacity %d overflows the address space", ErrInvalidArgument, o.Capacity)
	}
	switch o.Policy {
	case PolicyOverwriteOldest, PolicyError, PolicyOverwriteLRU:
	default:
		return fmt.Errorf("%w: eviction policy %v", ErrInvalidArgument, o.Policy)
	}
	if o.FS == nil {
		o.FS = fs.Default
	}
	return nil
}
