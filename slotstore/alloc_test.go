package slotstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(t *testing.T, s *Store) {
	t.Helper()
	for r := 0; r < s.Rows(); r++ {
		row := make([]float64, s.Dimension())
		for k := range row {
			row[k] = float64(r + 1)
		}
		_, err := s.AddRecord(row)
		require.NoError(t, err)
	}
}

func TestAllocate_SkipsOccupied(t *testing.T) {
	s := openTemp(t, Options{Capacity: 8})
	_, err := s.Write([]int{0, 2}, []float64{1, 1})
	require.NoError(t, err)

	got, err := s.Allocate(3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, got)

	// Allocation does not reserve.
	again, err := s.Allocate(3)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	empty, err := s.Allocate(0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = s.Allocate(-1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAllocate_PolicyError(t *testing.T) {
	s := openTemp(t, Options{Capacity: 4, Policy: PolicyError})
	_, err := s.Write([]int{0, 1, 2}, []float64{1, 1, 1})
	require.NoError(t, err)

	_, err = s.Allocate(2)
	var ce *CapacityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Requested)
	assert.Equal(t, 1, ce.Available)
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}

func TestAllocate_PolicyOverwriteOldest(t *testing.T) {
	s := openTemp(t, Options{Capacity: 4})
	_, err := s.Write([]int{0, 1, 2}, []float64{1, 1, 1})
	require.NoError(t, err)

	got, err := s.Allocate(2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, got)

	_, err = s.Allocate(5)
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}

func TestAllocate_PolicyOverwriteLRU(t *testing.T) {
	s := openTemp(t, Options{Capacity: 4, Policy: PolicyOverwriteLRU})
	_, err := s.Write([]int{0}, []float64{1})
	require.NoError(t, err)
	_, err = s.Write([]int{1}, []float64{1})
	require.NoError(t, err)
	_, err = s.Write([]int{2}, []float64{1})
	require.NoError(t, err)

	// Touch slot 0 so slot 1 becomes the least recently used.
	_, err = s.Read([]int{0})
	require.NoError(t, err)

	got, err := s.Allocate(2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, got)
}

func TestAllocateRows_Policies(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		s := openTemp(t, Options{Capacity: 6, Dimension: 3, Policy: PolicyError})
		fill(t, s)
		_, err := s.AddRecord([]float64{1, 2, 3})
		assert.ErrorIs(t, err, ErrCapacityExhausted)
	})

	t.Run("OverwriteOldest", func(t *testing.T) {
		s := openTemp(t, Options{Capacity: 6, Dimension: 3})
		fill(t, s)
		start, err := s.AddRecord([]float64{7, 7, 7})
		require.NoError(t, err)
		assert.Equal(t, 0, start)
		row, err := s.ReadRow(0)
		require.NoError(t, err)
		assert.Equal(t, []float64{7, 7, 7}, row)
	})

	t.Run("OverwriteLRU", func(t *testing.T) {
		s := openTemp(t, Options{Capacity: 9, Dimension: 3, Policy: PolicyOverwriteLRU})
		fill(t, s)
		_, err := s.ReadRow(0)
		require.NoError(t, err)
		start, err := s.AddRecord([]float64{7, 7, 7})
		require.NoError(t, err)
		assert.Equal(t, 3, start)
	})

	t.Run("FreeRowsFirst", func(t *testing.T) {
		s := openTemp(t, Options{Capacity: 9, Dimension: 3})
		_, err := s.Write([]int{4}, []float64{1})
		require.NoError(t, err)
		got, err := s.AllocateRows(2)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 6}, got)
	})
}

func TestAddRecord_Validation(t *testing.T) {
	s := openTemp(t, Options{Capacity: 8, Dimension: 4})

	_, err := s.AddRecord([]float64{1, 2})
	var de *DimensionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 4, de.Expected)
	assert.Equal(t, 2, de.Actual)

	_, err = s.AddRecord([]float64{0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrZeroVector)

	first, err := s.AddRecord([]float64{0, 0, 1, 0})
	require.NoError(t, err)
	second, err := s.AddRecord([]float64{1, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0, first)
	assert.Equal(t, 4, second)
}

func TestSparseSnapshot(t *testing.T) {
	s := openTemp(t, Options{Capacity: 8, Dimension: 2})
	_, err := s.Write([]int{1, 4, 5}, []float64{2, 3, 0})
	require.NoError(t, err)

	indices, values, err := s.SparseSnapshot()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, indices)
	assert.Equal(t, []float64{2, 3}, values)
}

func TestForEachOccupiedRow(t *testing.T) {
	s := openTemp(t, Options{Capacity: 8, Dimension: 2})
	_, err := s.Write([]int{2, 3, 6}, []float64{1, 2, 5})
	require.NoError(t, err)

	var starts []int
	var rows [][]float64
	err = s.ForEachOccupiedRow(func(start int, row []float64) bool {
		starts = append(starts, start)
		rows = append(rows, append([]float64(nil), row...))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 6}, starts)
	assert.Equal(t, [][]float64{{1, 2}, {5, 0}}, rows)

	count := 0
	_ = s.ForEachOccupiedRow(func(int, []float64) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestParseEvictionPolicy(t *testing.T) {
	for in, want := range map[string]EvictionPolicy{
		"":                 PolicyOverwriteOldest,
		"overwrite_oldest": PolicyOverwriteOldest,
		"ERROR":            PolicyError,
		"lru":              PolicyOverwriteLRU,
	} {
		got, err := ParseEvictionPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if in != "" {
			assert.NotEmpty(t, got.String())
		}
	}
	_, err := ParseEvictionPolicy("random")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
