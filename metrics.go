package vecsync

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordStore is called after each store operation.
	RecordStore(duration time.Duration, err error)

	// RecordSearch is called after each search operation.
	// k is the number of neighbors requested.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordPush is called after each push, explicit or automatic.
	RecordPush(auto bool, duration time.Duration, err error)

	// RecordPull is called after each pull.
	RecordPull(duration time.Duration, err error)

	// RecordBackup is called after each backup. mode is "full" or "sparse".
	RecordBackup(mode string, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordStore(time.Duration, error)          {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordPush(bool, time.Duration, error)     {}
func (NoopMetricsCollector) RecordPull(time.Duration, error)           {}
func (NoopMetricsCollector) RecordBackup(string, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	StoreCount       atomic.Int64
	StoreErrors      atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	PushCount        atomic.Int64
	PushErrors       atomic.Int64
	AutoPushCount    atomic.Int64
	PushTotalNanos   atomic.Int64
	PullCount        atomic.Int64
	PullErrors       atomic.Int64
	BackupCount      atomic.Int64
	BackupErrors     atomic.Int64
}

// RecordStore implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStore(_ time.Duration, err error) {
	b.StoreCount.Add(1)
	if err != nil {
		b.StoreErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(_ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordPush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPush(auto bool, duration time.Duration, err error) {
	b.PushCount.Add(1)
	b.PushTotalNanos.Add(duration.Nanoseconds())
	if auto {
		b.AutoPushCount.Add(1)
	}
	if err != nil {
		b.PushErrors.Add(1)
	}
}

// RecordPull implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPull(_ time.Duration, err error) {
	b.PullCount.Add(1)
	if err != nil {
		b.PullErrors.Add(1)
	}
}

// RecordBackup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBackup(_ string, _ time.Duration, err error) {
	b.BackupCount.Add(1)
	if err != nil {
		b.BackupErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		StoreCount:     b.StoreCount.Load(),
		StoreErrors:    b.StoreErrors.Load(),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		PushCount:      b.PushCount.Load(),
		PushErrors:     b.PushErrors.Load(),
		AutoPushCount:  b.AutoPushCount.Load(),
		PushAvgNanos:   avg(b.PushTotalNanos.Load(), b.PushCount.Load()),
		PullCount:      b.PullCount.Load(),
		PullErrors:     b.PullErrors.Load(),
		BackupCount:    b.BackupCount.Load(),
		BackupErrors:   b.BackupErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	StoreCount     int64
	StoreErrors    int64
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	PushCount      int64
	PushErrors     int64
	AutoPushCount  int64
	PushAvgNanos   int64
	PullCount      int64
	PullErrors     int64
	BackupCount    int64
	BackupErrors   int64
}
