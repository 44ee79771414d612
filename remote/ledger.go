package remote

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrConcurrentModification is returned when a ledger commit loses a race
// against another writer.
var ErrConcurrentModification = errors.New("remote: concurrent modification detected")

// Record describes one successful push of the primary object.
type Record struct {
	// Generation increases by one with every push.
	Generation uint64
	ObjectID   string
	Size       int64
	CRC32C     uint32
	PushedAt   time.Time
}

// Ledger is a commit log of pushes. It lets a pull verify what it downloaded
// and lets concurrent writers detect each other.
type Ledger interface {
	// Latest returns the newest record for objectName. ok is false when
	// nothing was committed yet.
	Latest(ctx context.Context, objectName string) (rec Record, ok bool, err error)

	// Commit appends rec. It fails with ErrConcurrentModification when a
	// record with rec.Generation already exists.
	Commit(ctx context.Context, objectName string, rec Record) error
}

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string][]Record
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string][]Record)}
}

// Latest returns the newest record.
func (l *MemoryLedger) Latest(ctx context.Context, objectName string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	recs := l.records[objectName]
	if len(recs) == 0 {
		return Record{}, false, nil
	}
	return recs[len(recs)-1], true, nil
}

// Commit appends rec if its generation follows the latest one.
func (l *MemoryLedger) Commit(ctx context.Context, objectName string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	recs := l.records[objectName]
	if len(recs) > 0 && recs[len(recs)-1].Generation >= rec.Generation {
		return ErrConcurrentModification
	}
	l.records[objectName] = append(recs, rec)
	return nil
}
