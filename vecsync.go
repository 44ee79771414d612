package vecsync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecsync/backup"
	"github.com/hupe1980/vecsync/remote"
	"github.com/hupe1980/vecsync/remotesync"
	"github.com/hupe1980/vecsync/resource"
	"github.com/hupe1980/vecsync/slotstore"
)

var errNoRemote = errors.New("no remote configured")

// Engine is a local vector store kept in step with a remote object store.
//
// Store, Read and Search only touch the local store and never fail because
// of the remote side. SyncPush, SyncPull and Backup move data to and from the
// remote object store and report ErrRemoteUnavailable when it is unreachable.
//
// An Engine is safe for concurrent use, but SyncPull and Restore replace the
// backing file and must not overlap reads and writes that expect the old
// content.
type Engine struct {
	store   *slotstore.Store
	syncer  *remotesync.Syncer
	backups *backup.Manager

	logger  *Logger
	metrics MetricsCollector

	remoteConfigured bool
	closed           atomic.Bool
}

// Open opens or creates the backing file at path and, when a remote is
// configured, authenticates against it.
//
// Open only fails for invalid options. A backing file that cannot be created
// or mapped puts the engine in degraded mode (see Degraded), and a remote
// that cannot be reached leaves it running local-only.
//
// If a previous pull was interrupted between its two renames, the ".bak" file
// is restored first and NeedsPull reports true until a pull succeeds; Open
// attempts that pull itself when the remote is reachable. Until then pushes,
// automatic or explicit, are refused so the restored file cannot overwrite
// newer remote content.
func Open(ctx context.Context, path string, optFns ...Option) (*Engine, error) {
	o := applyOptions(optFns)
	if o.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, o.err)
	}

	e := &Engine{
		logger:           o.logger.WithPath(path),
		metrics:          o.metricsCollector,
		remoteConfigured: o.connector != nil,
	}

	restored, err := remotesync.RecoverPrimary(o.fs, path)
	if err != nil {
		e.logger.LogRecovery(ctx, path, err)
	} else if restored {
		e.logger.LogRecovery(ctx, path, nil)
	}

	store, err := slotstore.Open(path, slotstore.Options{
		Capacity:  o.capacity,
		Dimension: o.dimension,
		Policy:    o.policy,
		FS:        o.fs,
		Logger:    e.logger.Logger,
	})
	if err != nil {
		return nil, translateError(err)
	}
	e.store = store

	connector := o.connector
	if connector == nil {
		connector = func(context.Context) (remote.ObjectStore, error) { return nil, errNoRemote }
	}
	objectName := o.objectName
	if objectName == "" {
		objectName = remotesync.DefaultObjectName
	}
	rc := resource.NewController(o.resources)
	e.syncer, err = remotesync.New(store, connector, remotesync.Options{
		ObjectName:       objectName,
		ParentID:         o.parentID,
		Timeout:          o.timeout,
		AutoSyncInterval: o.autoSyncInterval,
		Ledger:           o.ledger,
		Resources:        rc,
		FS:               o.fs,
		Logger:           e.logger.WithObject(objectName).Logger,
		Now:              o.now,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if restored {
		e.syncer.MarkNeedsPull()
	}

	bo := o.backup
	bo.FS = o.fs
	bo.Logger = e.logger.Logger
	bo.Now = o.now
	e.backups, err = backup.New(store, e.syncer, bo)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	if e.remoteConfigured {
		e.authenticate(ctx)
	}
	return e, nil
}

func (e *Engine) authenticate(ctx context.Context) {
	if err := e.syncer.Authenticate(ctx); err != nil {
		return
	}
	if e.syncer.NeedsPull() {
		if err := e.SyncPull(ctx); err != nil {
			e.logger.WarnContext(ctx, "pull after recovery failed, serving the restored file", "error", err)
		}
	}
}

// Authenticate retries authentication after Open failed to reach the remote.
func (e *Engine) Authenticate(ctx context.Context) error {
	if err := e.usable(); err != nil {
		return err
	}
	if !e.remoteConfigured {
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, errNoRemote)
	}
	if err := e.syncer.Authenticate(ctx); err != nil {
		return translateError(err)
	}
	if e.syncer.NeedsPull() {
		return e.SyncPull(ctx)
	}
	return nil
}

func (e *Engine) usable() error {
	if e == nil || e.closed.Load() {
		return ErrNotInitialized
	}
	return nil
}

// Store writes vector into a free row and returns the row's start slot.
// When the store is full the eviction policy decides which row is reused.
// A successful store may push opportunistically; a failed push is logged and
// counted, never returned.
func (e *Engine) Store(ctx context.Context, vector []float64) (int, error) {
	if err := e.usable(); err != nil {
		return 0, err
	}
	start := time.Now()
	idx, err := e.store.AddRecord(vector)
	err = translateError(err)
	e.metrics.RecordStore(time.Since(start), err)
	e.logger.LogStore(ctx, idx, len(vector), err)
	if err != nil {
		return 0, err
	}
	e.afterWrite(ctx)
	return idx, nil
}

// StoreAt writes values at explicit slots and returns the slots written.
func (e *Engine) StoreAt(ctx context.Context, indices []int, values []float64) ([]int, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	start := time.Now()
	written, err := e.store.Write(indices, values)
	err = translateError(err)
	e.metrics.RecordStore(time.Since(start), err)
	if err != nil {
		e.logger.LogStore(ctx, 0, len(values), err)
		return nil, err
	}
	e.afterWrite(ctx)
	return written, nil
}

func (e *Engine) afterWrite(ctx context.Context) {
	e.syncer.MarkDirty()

	start := time.Now()
	pushed, err := e.syncer.MaybeAutoPush(ctx)
	if !pushed && err == nil {
		return
	}
	e.metrics.RecordPush(true, time.Since(start), err)
	e.logger.LogPush(ctx, true, time.Since(start), err)
}

// Allocate returns count free slots without writing them.
func (e *Engine) Allocate(count int) ([]int, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	idx, err := e.store.Allocate(count)
	return idx, translateError(err)
}

// Read returns the values at the given slots.
func (e *Engine) Read(indices []int) ([]float64, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	values, err := e.store.Read(indices)
	return values, translateError(err)
}

// ReadVector returns the row starting at slot start.
func (e *Engine) ReadVector(start int) ([]float64, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	values, err := e.store.ReadRow(start)
	return values, translateError(err)
}

// Clear frees every slot.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.usable(); err != nil {
		return err
	}
	if err := e.store.Clear(); err != nil {
		return translateError(err)
	}
	e.afterWrite(ctx)
	return nil
}

// Flush forces pending writes to the backing file.
func (e *Engine) Flush() error {
	if err := e.usable(); err != nil {
		return err
	}
	return translateError(e.store.Flush())
}

// SyncPush uploads the whole store to the primary remote object.
func (e *Engine) SyncPush(ctx context.Context) error {
	if err := e.usable(); err != nil {
		return err
	}
	start := time.Now()
	err := translateError(e.syncer.Push(ctx))
	e.metrics.RecordPush(false, time.Since(start), err)
	e.logger.LogPush(ctx, false, time.Since(start), err)
	return err
}

// SyncPull replaces the store with the primary remote object. The current
// backing file is kept as ".bak".
func (e *Engine) SyncPull(ctx context.Context) error {
	if err := e.usable(); err != nil {
		return err
	}
	start := time.Now()
	err := translateError(e.syncer.Pull(ctx))
	e.metrics.RecordPull(time.Since(start), err)
	e.logger.LogPull(ctx, time.Since(start), err)
	return err
}

// Backup creates a backup in the given mode.
func (e *Engine) Backup(ctx context.Context, mode backup.Mode) (backup.Info, error) {
	if err := e.usable(); err != nil {
		return backup.Info{}, err
	}
	start := time.Now()
	var (
		info backup.Info
		err  error
	)
	switch mode {
	case backup.ModeFull:
		info, err = e.backups.FullBackup(ctx, "")
	case backup.ModeSparse:
		info, err = e.backups.SparseBackup(ctx, "")
	default:
		err = fmt.Errorf("%w: backup mode %v", ErrInvalidArgument, mode)
	}
	err = translateError(err)
	e.metrics.RecordBackup(mode.String(), time.Since(start), err)
	e.logger.LogBackup(ctx, mode.String(), info.Name, err)
	return info, err
}

// CreateBackup creates a backup in the configured mode.
func (e *Engine) CreateBackup(ctx context.Context) (backup.Info, error) {
	return e.Backup(ctx, e.backups.Mode())
}

// ListBackups returns all backups, newest first.
func (e *Engine) ListBackups(ctx context.Context) ([]backup.Info, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	list, err := e.backups.List(ctx)
	return list, translateError(err)
}

// Restore replaces the store with a backup, given by id or name.
func (e *Engine) Restore(ctx context.Context, id string) (backup.Info, error) {
	if err := e.usable(); err != nil {
		return backup.Info{}, err
	}
	info, err := e.backups.Restore(ctx, id)
	return info, translateError(err)
}

// PruneBackups deletes all but the newest keep backups. A negative keep
// uses the configured retention.
func (e *Engine) PruneBackups(ctx context.Context, keep int) (int, error) {
	if err := e.usable(); err != nil {
		return 0, err
	}
	n, err := e.backups.Prune(ctx, keep)
	return n, translateError(err)
}

// Degraded reports whether the engine runs on a heap array because the
// backing file could not be created or mapped.
func (e *Engine) Degraded() bool {
	return e.store.Degraded()
}

// DegradedReason returns the IOFailure that caused degraded mode, or nil.
func (e *Engine) DegradedReason() error {
	if err := e.store.DegradedReason(); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Dirty reports whether local writes happened since the last push or pull,
// or nothing was transferred since authentication.
func (e *Engine) Dirty() bool {
	switch e.syncer.State() {
	case remotesync.StateAuthenticated, remotesync.StateDiverged:
		return true
	default:
		return false
	}
}

// NeedsPull reports whether the backing file was restored from ".bak" at
// boot and no pull or restore has succeeded since.
func (e *Engine) NeedsPull() bool {
	return e.syncer.NeedsPull()
}

// BackupDue reports whether the configured backup frequency elapsed since
// the last backup. It is always false without a frequency.
func (e *Engine) BackupDue(now time.Time) bool {
	return e.backups.Due(now)
}

// Syncer exposes the remote synchronizer, for schedulers.
func (e *Engine) Syncer() *remotesync.Syncer { return e.syncer }

// BackupManager exposes the backup manager, for schedulers.
func (e *Engine) BackupManager() *backup.Manager { return e.backups }

// Stats is a point-in-time summary of the engine.
type Stats struct {
	slotstore.Stats
	NeedsPull  bool
	SyncState  string
	ObjectID   string
	LastSync   time.Time
	LastBackup time.Time
}

// Stats returns a summary of the engine.
func (e *Engine) Stats() Stats {
	return Stats{
		Stats:      e.store.Stats(),
		NeedsPull:  e.syncer.NeedsPull(),
		SyncState:  e.syncer.State().String(),
		ObjectID:   e.syncer.ObjectID(),
		LastSync:   e.syncer.LastSync(),
		LastBackup: e.backups.LastBackup(),
	}
}
