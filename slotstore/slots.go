package slotstore

import (
	"fmt"
	"io"
	"slices"
)

func (s *Store) checkIndex(i int) error {
	if i < 0 || i >= s.capacity {
		return &IndexError{Index: i, Capacity: s.capacity}
	}
	return nil
}

// Write stores values at the given slots, overwriting prior contents
// including zero sentinels. All indices are validated before anything is
// written. It returns the indices written.
func (s *Store) Write(indices []int, values []float64) ([]int, error) {
	if len(indices) != len(values) {
		return nil, fmt.Errorf("%w: %d indices for %d values", ErrInvalidArgument, len(indices), len(values))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	for _, i := range indices {
		if err := s.checkIndex(i); err != nil {
			return nil, err
		}
	}

	for k, i := range indices {
		s.set(i, values[k])
	}
	lastRow := -1
	for _, i := range indices {
		if r := i / s.dim; r != lastRow {
			s.refreshRow(r)
			lastRow = r
		}
	}

	return slices.Clone(indices), nil
}

// refreshRow updates the occupancy index and access clock after a write to row r.
func (s *Store) refreshRow(r int) {
	if s.rowIsZero(r) {
		s.occupied.Remove(uint32(r))
	} else {
		s.occupied.Add(uint32(r))
	}
	s.touch(r)
}

// Read returns the values stored at the given slots.
func (s *Store) Read(indices []int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(); err != nil {
		return nil, err
	}

	out := make([]float64, len(indices))
	lastRow := -1
	for k, i := range indices {
		if err := s.checkIndex(i); err != nil {
			return nil, err
		}
		out[k] = s.get(i)
		if r := i / s.dim; r != lastRow {
			s.touch(r)
			lastRow = r
		}
	}
	return out, nil
}

// ReadRow returns the row starting at slot start. start must be row aligned.
func (s *Store) ReadRow(start int) ([]float64, error) {
	if start%s.dim != 0 {
		return nil, fmt.Errorf("%w: slot %d is not a row start", ErrInvalidArgument, start)
	}
	indices := make([]int, s.dim)
	for k := range indices {
		indices[k] = start + k
	}
	return s.Read(indices)
}

// Clear zeroes every slot.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	clear(s.data)
	s.occupied.Clear()
	return s.flushLocked()
}

// Snapshot writes the raw slot bytes to w, in backing-file layout.
func (s *Store) Snapshot(w io.Writer) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(); err != nil {
		return 0, err
	}
	n, err := w.Write(s.data)
	return int64(n), err
}

// Load replaces every slot with the bytes read from r, which must supply
// exactly Capacity*8 bytes. The current contents are kept when r is short.
func (s *Store) Load(r io.Reader) error {
	buf := make([]byte, s.byteSize())
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("%w: %w", ErrSizeMismatch, err)
	}
	if n, _ := r.Read(make([]byte, 1)); n > 0 {
		return ErrSizeMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	copy(s.data, buf)
	s.rebuildOccupancy()
	return s.flushLocked()
}

// Swap flushes and unmaps the backing file, runs swap with no mapping held,
// then maps whatever file is at the path afterwards. If swap fails the store
// reopens the untouched original. If the file left at the path cannot be
// mapped, the store falls back to heap mode like Open does.
//
// Swap is not available in degraded mode; use Load instead.
func (s *Store) Swap(swap func(path string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	if s.degraded {
		return fmt.Errorf("%w: swap requires a mapped backing file", ErrNotInitialized)
	}

	if err := s.releaseLocked(); err != nil {
		s.warn("flush before swap failed", "path", s.path, "error", err)
	}

	swapErr := swap(s.path)

	if err := s.openBacking(false); err != nil {
		s.fallbackToHeap(err)
	}
	s.rebuildOccupancy()
	s.resetClock()

	return swapErr
}

func (s *Store) resetClock() {
	if s.touched == nil {
		return
	}
	for i := range s.touched {
		s.touched[i].Store(0)
	}
	s.clock.Store(0)
}
