package slotstore

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecsync/internal/fs"
	"github.com/hupe1980/vecsync/internal/mmap"
)

// Store is a fixed-capacity array of float64 slots backed by a mapped file.
type Store struct {
	mu sync.RWMutex

	path     string
	capacity int
	dim      int
	rows     int
	policy   EvictionPolicy
	fs       fs.FileSystem
	logger   *slog.Logger

	file    fs.File
	mapping *mmap.Mapping
	data    []byte // mapping bytes, or a heap array in degraded mode

	degraded    bool
	degradedErr error
	fresh       bool

	occupied *roaring.Bitmap // occupied rows

	// LRU bookkeeping, only allocated for PolicyOverwriteLRU.
	clock   atomic.Uint64
	touched []atomic.Uint64

	closed bool
}

// Open opens the backing file at path, creating a zero-filled one of exactly
// Capacity*8 bytes when it does not exist. An existing file of the wrong size
// is moved aside to path+".invalid". When the file cannot be created or
// mapped, the store falls back to a heap array and Degraded reports true; Open
// only fails for invalid options. An empty path always runs in heap mode.
func Open(path string, opts Options) (*Store, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	s := &Store{
		path:     path,
		capacity: opts.Capacity,
		dim:      opts.Dimension,
		rows:     opts.Capacity / opts.Dimension,
		policy:   opts.Policy,
		fs:       opts.FS,
		logger:   opts.Logger,
	}
	if s.policy == PolicyOverwriteLRU {
		s.touched = make([]atomic.Uint64, s.rows)
	}

	if err := s.openBacking(true); err != nil {
		s.fallbackToHeap(err)
	}
	s.rebuildOccupancy()

	return s, nil
}

func (s *Store) byteSize() int64 {
	return int64(s.capacity) * SlotSize
}

// openBacking opens (and when create is set, creates) the backing file and maps it.
func (s *Store) openBacking(create bool) error {
	if s.path == "" {
		return &IOError{Op: "open", Path: s.path, Err: errors.New("no backing path configured")}
	}

	size := s.byteSize()
	fi, err := s.fs.Stat(s.path)
	switch {
	case err == nil && fi.Size() == size:
		// Reuse as is.
	case err == nil && create:
		aside := s.path + ".invalid"
		s.warn("backing file has unexpected size, moving aside", "path", s.path, "size", fi.Size(), "expected", size, "moved_to", aside)
		if err := s.fs.Rename(s.path, aside); err != nil {
			return &IOError{Op: "rename", Path: s.path, Err: err}
		}
		if err := s.create(); err != nil {
			return err
		}
	case err == nil:
		return &IOError{Op: "open", Path: s.path, Err: ErrSizeMismatch}
	case os.IsNotExist(err) && create:
		if err := s.create(); err != nil {
			return err
		}
	default:
		return &IOError{Op: "stat", Path: s.path, Err: err}
	}

	f, err := s.fs.OpenFile(s.path, os.O_RDWR, 0o644)
	if err != nil {
		return &IOError{Op: "open", Path: s.path, Err: err}
	}

	m, err := mmap.Map(f, int(size))
	if err != nil {
		// Keep the contents even though we cannot map them.
		s.preload(f)
		_ = f.Close()
		return &IOError{Op: "mmap", Path: s.path, Err: err}
	}
	_ = m.Advise(mmap.AccessRandom)

	s.file = f
	s.mapping = m
	s.data = m.Bytes()
	s.degraded = false
	s.degradedErr = nil
	return nil
}

// create writes a fresh zero-filled backing file.
func (s *Store) create() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return &IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	f, err := s.fs.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return &IOError{Op: "create", Path: s.path, Err: err}
	}
	// Truncate extends with zeros; on most filesystems the file stays sparse.
	if err := f.Truncate(s.byteSize()); err != nil {
		_ = f.Close()
		return &IOError{Op: "truncate", Path: s.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return &IOError{Op: "sync", Path: s.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: s.path, Err: err}
	}
	s.fresh = true
	return nil
}

// preload copies a readable backing file into a heap array so that degraded
// mode still serves the persisted contents.
func (s *Store) preload(f fs.File) {
	buf := make([]byte, s.byteSize())
	if _, err := f.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return
	}
	s.data = buf
}

func (s *Store) fallbackToHeap(cause error) {
	if int64(len(s.data)) != s.byteSize() {
		s.data = make([]byte, s.byteSize())
	}
	s.file = nil
	s.mapping = nil
	s.degraded = true
	s.degradedErr = cause
	s.warn("running in degraded mode, slots are not persisted", "path", s.path, "error", cause)
}

func (s *Store) rebuildOccupancy() {
	bm := roaring.New()
	for r := 0; r < s.rows; r++ {
		if !s.rowIsZero(r) {
			bm.Add(uint32(r))
		}
	}
	bm.RunOptimize()
	s.occupied = bm
}

func (s *Store) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Store) get(i int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(s.data[i*SlotSize:]))
}

func (s *Store) set(i int, v float64) {
	binary.LittleEndian.PutUint64(s.data[i*SlotSize:], math.Float64bits(v))
}

func (s *Store) rowIsZero(r int) bool {
	start := r * s.dim
	for i := start; i < start+s.dim; i++ {
		if s.get(i) != 0 {
			return false
		}
	}
	return true
}

func (s *Store) touch(r int) {
	if s.touched != nil {
		s.touched[r].Store(s.clock.Add(1))
	}
}

func (s *Store) usable() error {
	if s.closed || s.data == nil {
		return ErrNotInitialized
	}
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Capacity returns the number of slots.
func (s *Store) Capacity() int { return s.capacity }

// Dimension returns the row width in slots.
func (s *Store) Dimension() int { return s.dim }

// Rows returns the number of rows.
func (s *Store) Rows() int { return s.rows }

// Policy returns the configured eviction policy.
func (s *Store) Policy() EvictionPolicy { return s.policy }

// Degraded reports whether the store runs on a heap array instead of the file.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// DegradedReason returns the IOError that forced heap mode, or nil.
func (s *Store) DegradedReason() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degradedErr
}

// Fresh reports whether Open created a new zero-filled backing file.
func (s *Store) Fresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fresh
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Path         string
	Capacity     int
	Dimension    int
	Rows         int
	OccupiedRows int
	Degraded     bool
}

// Stats returns a summary of the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Path:      s.path,
		Capacity:  s.capacity,
		Dimension: s.dim,
		Rows:      s.rows,
		Degraded:  s.degraded,
	}
	if s.occupied != nil {
		st.OccupiedRows = int(s.occupied.GetCardinality())
	}
	return st
}

// Flush forces the mapping to durable storage. It is a no-op in degraded mode.
func (s *Store) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if s.mapping == nil {
		return nil
	}
	return s.mapping.Sync()
}

// releaseLocked flushes and unmaps the backing file.
func (s *Store) releaseLocked() error {
	var err error
	if s.mapping != nil {
		err = s.mapping.Sync()
		if closeErr := s.mapping.Close(); err == nil {
			err = closeErr
		}
		s.mapping = nil
	}
	if s.file != nil {
		if closeErr := s.file.Close(); err == nil {
			err = closeErr
		}
		s.file = nil
	}
	s.data = nil
	return err
}

// Close flushes and releases the mapping. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.releaseLocked()
}
