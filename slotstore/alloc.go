package slotstore

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecsync/distance"
)

// Allocate returns count indices of currently free slots, scanning from slot 0
// upward. When fewer are free, the eviction policy decides: PolicyError fails
// with a *CapacityError, PolicyOverwriteOldest returns the first count indices,
// PolicyOverwriteLRU keeps the free slots and fills up with slots of the least
// recently used rows. Nothing is reserved until the caller writes.
func (s *Store) Allocate(count int) ([]int, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrInvalidArgument, count)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	return s.allocateLocked(count)
}

func (s *Store) allocateLocked(count int) ([]int, error) {
	if count == 0 {
		return []int{}, nil
	}

	free := s.freeSlots(count)
	if len(free) == count {
		return free, nil
	}
	if count > s.capacity {
		return nil, &CapacityError{Requested: count, Available: len(free)}
	}

	switch s.policy {
	case PolicyOverwriteOldest:
		s.warn("no free slots, overwriting lowest indices", "requested", count, "free", len(free))
		out := make([]int, count)
		for i := range out {
			out[i] = i
		}
		return out, nil
	case PolicyOverwriteLRU:
		s.warn("no free slots, overwriting least recently used rows", "requested", count, "free", len(free))
		return s.lruSlots(count, free), nil
	default:
		return nil, &CapacityError{Requested: count, Available: len(free)}
	}
}

// freeSlots collects up to limit zero slots in ascending order.
func (s *Store) freeSlots(limit int) []int {
	out := make([]int, 0, min(limit, 4096))
	for r := 0; r < s.rows && len(out) < limit; r++ {
		start := r * s.dim
		if !s.occupied.Contains(uint32(r)) {
			for i := start; i < start+s.dim && len(out) < limit; i++ {
				out = append(out, i)
			}
			continue
		}
		for i := start; i < start+s.dim && len(out) < limit; i++ {
			if s.get(i) == 0 {
				out = append(out, i)
			}
		}
	}
	return out
}

// lruRows returns occupied rows ordered by last access, oldest first.
func (s *Store) lruRows() []int {
	rows := make([]int, 0, s.occupied.GetCardinality())
	it := s.occupied.Iterator()
	for it.HasNext() {
		rows = append(rows, int(it.Next()))
	}
	slices.SortStableFunc(rows, func(a, b int) int {
		return cmp.Compare(s.touched[a].Load(), s.touched[b].Load())
	})
	return rows
}

func (s *Store) lruSlots(count int, free []int) []int {
	selected := make(map[int]struct{}, count)
	out := make([]int, 0, count)
	for _, i := range free {
		selected[i] = struct{}{}
		out = append(out, i)
	}
	for _, r := range s.lruRows() {
		start := r * s.dim
		for i := start; i < start+s.dim && len(out) < count; i++ {
			if _, ok := selected[i]; ok {
				continue
			}
			selected[i] = struct{}{}
			out = append(out, i)
		}
		if len(out) == count {
			break
		}
	}
	slices.Sort(out)
	return out
}

// AllocateRows returns the start slots of n free rows, lowest first, applying
// the eviction policy at row granularity when fewer rows are free.
func (s *Store) AllocateRows(n int) ([]int, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrInvalidArgument, n)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	return s.allocateRowsLocked(n)
}

func (s *Store) allocateRowsLocked(n int) ([]int, error) {
	if n == 0 {
		return []int{}, nil
	}

	out := make([]int, 0, min(n, 4096))
	free := roaring.Flip(s.occupied, 0, uint64(s.rows))
	it := free.Iterator()
	for it.HasNext() && len(out) < n {
		out = append(out, int(it.Next())*s.dim)
	}
	if len(out) == n {
		return out, nil
	}
	if n > s.rows {
		return nil, &CapacityError{Requested: n, Available: len(out)}
	}

	switch s.policy {
	case PolicyOverwriteOldest:
		s.warn("no free rows, overwriting lowest rows", "requested", n, "free", len(out))
		rows := make([]int, n)
		for r := range rows {
			rows[r] = r * s.dim
		}
		return rows, nil
	case PolicyOverwriteLRU:
		s.warn("no free rows, overwriting least recently used rows", "requested", n, "free", len(out))
		for _, r := range s.lruRows() {
			if len(out) == n {
				break
			}
			out = append(out, r*s.dim)
		}
		slices.Sort(out)
		return out, nil
	default:
		return nil, &CapacityError{Requested: n, Available: len(out)}
	}
}

// AddRecord allocates one row, writes payload into it and returns the row's
// start slot. payload must have exactly Dimension elements and must not be all
// zeros.
func (s *Store) AddRecord(payload []float64) (int, error) {
	if len(payload) != s.dim {
		return 0, &DimensionError{Expected: s.dim, Actual: len(payload)}
	}
	if distance.IsZero(payload) {
		return 0, ErrZeroVector
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return 0, err
	}

	starts, err := s.allocateRowsLocked(1)
	if err != nil {
		return 0, err
	}
	start := starts[0]
	for k, v := range payload {
		s.set(start+k, v)
	}
	s.refreshRow(start / s.dim)
	return start, nil
}
