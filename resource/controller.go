package resource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimit is returned for a reservation larger than the whole limit.
var ErrMemoryLimit = errors.New("resource: request exceeds memory limit")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for transient buffers such as the
	// arrays of a sparse backup. If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxRemoteOps is the maximum number of concurrent remote operations
	// (push, pull, backup). If 0, defaults to 1, which makes them exclusive.
	MaxRemoteOps int64

	// IOLimitBytesPerSec is the maximum throughput of uploads and downloads.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages resources shared by the sync and backup paths.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Remote operation slots
	remoteSem *semaphore.Weighted

	// IO
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxRemoteOps <= 0 {
		cfg.MaxRemoteOps = 1
	}

	c := &Controller{
		cfg:       cfg,
		remoteSem: semaphore.NewWeighted(cfg.MaxRemoteOps),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// Config returns the effective limits.
func (c *Controller) Config() Config {
	return c.cfg
}

// AcquireMemory attempts to reserve memory.
// If a hard limit is configured and usage would exceed it,
// this blocks until memory is available or ctx is canceled.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if bytes > c.cfg.MemoryLimitBytes {
			return fmt.Errorf("%w: %d > %d bytes", ErrMemoryLimit, bytes, c.cfg.MemoryLimitBytes)
		}
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}


// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireRemote reserves a remote operation slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireRemote(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.remoteSem.Acquire(ctx, 1)
}

// TryAcquireRemote reserves a remote operation slot without blocking.
func (c *Controller) TryAcquireRemote() bool {
	if c == nil {
		return true
	}
	return c.remoteSem.TryAcquire(1)
}

// ReleaseRemote releases a remote operation slot.
func (c *Controller) ReleaseRemote() {
	if c == nil {
		return
	}
	c.remoteSem.Release(1)
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
// Requests larger than the limiter burst are split.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// Limited reports whether an IO limit is configured.
func (c *Controller) Limited() bool {
	return c != nil && c.ioLimiter != nil
}
