package vecsync

import (
	"log/slog"
	"time"

	"github.com/hupe1980/vecsync/backup"
	"github.com/hupe1980/vecsync/internal/fs"
	"github.com/hupe1980/vecsync/internal/npz"
	"github.com/hupe1980/vecsync/remote"
	"github.com/hupe1980/vecsync/remotesync"
	"github.com/hupe1980/vecsync/resource"
	"github.com/hupe1980/vecsync/slotstore"
)

// DefaultCacheSize is the local cache size used when neither WithCapacity
// nor WithCacheSize is given: 8 MiB, one million slots.
const DefaultCacheSize = 8 << 20

type options struct {
	capacity  int
	cacheSize int64
	dimension int
	policy    slotstore.EvictionPolicy

	connector        remotesync.Connector
	objectName       string
	parentID         string
	timeout          time.Duration
	autoSyncInterval time.Duration
	ledger           remote.Ledger
	resources        resource.Config

	backup backup.Options

	fs               fs.FileSystem
	now              func() time.Time
	metricsCollector MetricsCollector
	logger           *Logger
	err              error
}

// Option configures Open.
type Option func(*options)

// WithCapacity sets the number of slots. It wins over WithCacheSize.
func WithCapacity(slots int) Option {
	return func(o *options) {
		o.capacity = slots
	}
}

// WithCacheSize sets the local cache size in bytes. The capacity is the
// largest multiple of the dimension that fits.
func WithCacheSize(bytes int64) Option {
	return func(o *options) {
		o.cacheSize = bytes
	}
}

// WithDimension sets the row width. Every stored vector and every query
// must have exactly this many elements. Defaults to 1.
func WithDimension(dim int) Option {
	return func(o *options) {
		o.dimension = dim
	}
}

// WithEvictionPolicy selects what Store does when the store is full.
func WithEvictionPolicy(p slotstore.EvictionPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithRemote syncs against s.
func WithRemote(s remote.ObjectStore) Option {
	return func(o *options) {
		o.connector = remotesync.StaticConnector(s)
	}
}

// WithConnector syncs against the store c yields. c runs once during Open;
// if it fails the engine keeps running local-only.
func WithConnector(c remotesync.Connector) Option {
	return func(o *options) {
		o.connector = c
	}
}

// WithObjectName sets the name of the primary remote object, and optionally
// the folder it is created in.
func WithObjectName(name, parentID string) Option {
	return func(o *options) {
		o.objectName = name
		o.parentID = parentID
	}
}

// WithRemoteTimeout bounds every remote operation.
func WithRemoteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithAutoSyncInterval sets how old the last sync must be before Store
// pushes opportunistically. A negative interval disables auto-push.
func WithAutoSyncInterval(d time.Duration) Option {
	return func(o *options) {
		o.autoSyncInterval = d
	}
}

// WithLedger records every push in l and verifies pulls against it.
func WithLedger(l remote.Ledger) Option {
	return func(o *options) {
		o.ledger = l
	}
}

// WithIOLimit throttles uploads and downloads to bytesPerSec.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.resources.IOLimitBytesPerSec = bytesPerSec
	}
}

// WithMemoryLimit caps the transient memory of sparse backups.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.resources.MemoryLimitBytes = bytes
	}
}

// WithBackupMode selects what Backup produces by default.
func WithBackupMode(m backup.Mode) Option {
	return func(o *options) {
		o.backup.Mode = m
	}
}

// WithBackupFolder places backups inside a remote folder.
func WithBackupFolder(folderID string) Option {
	return func(o *options) {
		o.backup.FolderID = folderID
	}
}

// WithBackupCompression sets the sparse archive codec ("deflate" or "zstd")
// and level. Level 0 picks the codec default.
func WithBackupCompression(codec string, level int) Option {
	return func(o *options) {
		c, err := npz.ParseCompression(codec)
		if err != nil {
			o.err = err
			return
		}
		o.backup.Compression = c
		o.backup.CompressionLevel = level
	}
}

// WithBackupSchedule sets the advisory cadence and the retention of Prune.
func WithBackupSchedule(frequencyDays, keep int) Option {
	return func(o *options) {
		o.backup.FrequencyDays = frequencyDays
		o.backup.Keep = keep
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecsync.BasicMetricsCollector{}
//	e, _ := vecsync.Open(ctx, "memory.bin", vecsync.WithMetricsCollector(metrics))
//	// ... use e ...
//	stats := metrics.GetStats()
//	fmt.Printf("Pushes: %d, failed: %d\n", stats.PushCount, stats.PushErrors)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecsync.NewJSONLogger(slog.LevelInfo)
//	e, _ := vecsync.Open(ctx, "memory.bin", vecsync.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func withClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		dimension:        1,
		cacheSize:        DefaultCacheSize,
		fs:               fs.Default,
		now:              time.Now,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.capacity == 0 {
		o.capacity = slotstore.CapacityForBytes(o.cacheSize, o.dimension)
	}
	return o
}
