package vecsync

import (
	"context"
	"time"

	"github.com/hupe1980/vecsync/similarity"
)

// SearchResult is one ranked row: its start slot and cosine similarity.
type SearchResult = similarity.Result

// Search returns up to k stored vectors most similar to query, best first.
// An all-zero query or an empty store yields an empty, non-nil result.
// Rows with zero norm are skipped.
func (e *Engine) Search(ctx context.Context, query []float64, k int) ([]SearchResult, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	start := time.Now()
	results, err := similarity.Search(e.store, query, k)
	err = translateError(err)
	e.metrics.RecordSearch(k, time.Since(start), err)
	e.logger.LogSearch(ctx, k, len(results), err)
	if err != nil {
		return nil, err
	}
	return results, nil
}
