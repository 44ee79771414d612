package slotstore

// Occupied returns the start slots of all occupied rows in ascending order.
func (s *Store) Occupied() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.occupied == nil {
		return nil
	}
	out := make([]int, 0, s.occupied.GetCardinality())
	it := s.occupied.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next())*s.dim)
	}
	return out
}

// OccupiedRows returns the number of occupied rows.
func (s *Store) OccupiedRows() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.occupied == nil {
		return 0
	}
	return int(s.occupied.GetCardinality())
}

// ForEachOccupiedRow calls fn with the start slot and values of every
// occupied row in ascending order until fn returns false. row is a scratch
// buffer reused between calls and must not be retained.
func (s *Store) ForEachOccupiedRow(fn func(start int, row []float64) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(); err != nil {
		return err
	}

	row := make([]float64, s.dim)
	it := s.occupied.Iterator()
	for it.HasNext() {
		start := int(it.Next()) * s.dim
		for k := range row {
			row[k] = s.get(start + k)
		}
		if !fn(start, row) {
			return nil
		}
	}
	return nil
}

// SparseSnapshot returns the index and value of every non-zero slot in
// ascending index order.
func (s *Store) SparseSnapshot() ([]int64, []float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(); err != nil {
		return nil, nil, err
	}

	n := int(s.occupied.GetCardinality()) * s.dim
	indices := make([]int64, 0, n)
	values := make([]float64, 0, n)
	it := s.occupied.Iterator()
	for it.HasNext() {
		start := int(it.Next()) * s.dim
		for i := start; i < start+s.dim; i++ {
			if v := s.get(i); v != 0 {
				indices = append(indices, int64(i))
				values = append(values, v)
			}
		}
	}
	return indices, values, nil
}
