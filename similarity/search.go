package similarity

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecsync/distance"
	"github.com/hupe1980/vecsync/internal/queue"
	"github.com/hupe1980/vecsync/slotstore"
)

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("similarity: k must be positive")

// ErrDimensionMismatch is returned when the query length differs from the row width.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("similarity: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Result is one ranked row.
type Result struct {
	// Index is the start slot of the row.
	Index int
	// Score is the cosine similarity in [-1, 1].
	Score float64
}

// Rows is the view of a store the index scans.
type Rows interface {
	Dimension() int
	ForEachOccupiedRow(fn func(start int, row []float64) bool) error
}

var _ Rows = (*slotstore.Store)(nil)

// Search returns up to k rows of rows most similar to query.
// An all-zero query, or a store without occupied rows, yields an empty result.
func Search(rows Rows, query []float64, k int) ([]Result, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if dim := rows.Dimension(); len(query) != dim {
		return nil, &ErrDimensionMismatch{Expected: dim, Actual: len(query)}
	}

	unit, ok := distance.NormalizeL2Copy(query)
	if !ok {
		return []Result{}, nil
	}

	top := queue.NewTopK(k)
	err := rows.ForEachOccupiedRow(func(start int, row []float64) bool {
		if score, ok := distance.CosineUnit(unit, row); ok {
			top.Push(queue.Item{Index: start, Score: score})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	items := top.Sorted()
	out := make([]Result, len(items))
	for i, it := range items {
		out[i] = Result{Index: it.Index, Score: it.Score}
	}
	return out, nil
}
