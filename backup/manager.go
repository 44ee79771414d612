package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecsync/internal/fs"
	"github.com/hupe1980/vecsync/internal/npz"
	"github.com/hupe1980/vecsync/remote"
	"github.com/hupe1980/vecsync/remotesync"
	"github.com/hupe1980/vecsync/resource"
	"github.com/hupe1980/vecsync/slotstore"
)

// ErrInvalidArchive is returned when a sparse backup does not fit the store.
var ErrInvalidArchive = errors.New("backup: invalid sparse archive")

const pruneConcurrency = 4

// Options configures a Manager.
type Options struct {
	// Mode selects what CreateBackup produces.
	Mode Mode

	// FolderID places backups inside a remote folder. May be empty.
	FolderID string

	// Compression of sparse archives. The zero value is deflate.
	Compression npz.Compression

	// CompressionLevel of sparse archives. 0 picks the codec default.
	CompressionLevel int

	// FrequencyDays is the advisory backup cadence used by Due. 0 means never due.
	FrequencyDays int

	// Keep is the retention used by Prune when called with keep < 0. 0 keeps everything.
	Keep int

	// TempDir holds sparse archives while they upload. If empty, os.TempDir() is used.
	TempDir string

	// FS is used for temporary files. If nil, fs.Default is used.
	FS fs.FileSystem

	// Logger may be nil.
	Logger *slog.Logger

	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time
}

// Info describes one backup object.
type Info struct {
	ID        string
	Name      string
	Mode      Mode
	CreatedAt time.Time
	Size      int64
}

// Manager creates, lists, restores and prunes backups of one store.
type Manager struct {
	store  *slotstore.Store
	syncer *remotesync.Syncer
	opts   Options

	mu         sync.Mutex
	lastBackup time.Time
}

// New creates a Manager. The syncer provides the remote client and the
// primary object that full backups copy.
func New(store *slotstore.Store, syncer *remotesync.Syncer, opts Options) (*Manager, error) {
	if store == nil || syncer == nil {
		return nil, errors.New("backup: store and syncer are required")
	}
	switch opts.Mode {
	case ModeFull, ModeSparse:
	default:
		return nil, fmt.Errorf("backup: invalid mode %v", opts.Mode)
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{store: store, syncer: syncer, opts: opts}, nil
}

// Mode returns the configured mode.
func (m *Manager) Mode() Mode { return m.opts.Mode }

// LastBackup returns the time of the last successful backup.
func (m *Manager) LastBackup() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBackup
}

// Due reports whether FrequencyDays have passed since the last backup.
func (m *Manager) Due(now time.Time) bool {
	if m.opts.FrequencyDays <= 0 {
		return false
	}
	last := m.LastBackup()
	return last.IsZero() || now.Sub(last) >= time.Duration(m.opts.FrequencyDays)*24*time.Hour
}

func (m *Manager) markDone(t time.Time) {
	m.mu.Lock()
	m.lastBackup = t
	m.mu.Unlock()
}

func (m *Manager) info(msg string, args ...any) {
	if m.opts.Logger != nil {
		m.opts.Logger.Info(msg, args...)
	}
}

func (m *Manager) warn(msg string, args ...any) {
	if m.opts.Logger != nil {
		m.opts.Logger.Warn(msg, args...)
	}
}

// remoteOp runs fn holding the remote slot, under the syncer's timeout.
func (m *Manager) remoteOp(ctx context.Context, fn func(ctx context.Context, client remote.ObjectStore) error) error {
	client, err := m.syncer.Client()
	if err != nil {
		return err
	}
	rc := m.syncer.Resources()
	if err := remotesync.AcquireSlot(ctx, rc); err != nil {
		return err
	}
	defer rc.ReleaseRemote()

	ctx, cancel := context.WithTimeout(ctx, m.syncer.Timeout())
	defer cancel()
	return fn(ctx, client)
}

func remoteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &remotesync.RemoteError{Op: op, Err: err}
}

// CreateBackup runs the configured mode with a default name.
func (m *Manager) CreateBackup(ctx context.Context) (Info, error) {
	if m.opts.Mode == ModeSparse {
		return m.SparseBackup(ctx, "")
	}
	return m.FullBackup(ctx, "")
}

// FullBackup pushes the store, then copies the primary object under name.
// An empty name picks the timestamped default.
func (m *Manager) FullBackup(ctx context.Context, name string) (Info, error) {
	if err := m.syncer.Push(ctx); err != nil {
		return Info{}, fmt.Errorf("backup: push before copy: %w", err)
	}

	now := m.opts.Now()
	if name == "" {
		name = Name(ModeFull, now)
	}
	out := Info{Name: name, Mode: ModeFull, CreatedAt: now.UTC(), Size: int64(m.store.Capacity()) * slotstore.SlotSize}

	err := m.remoteOp(ctx, func(ctx context.Context, client remote.ObjectStore) error {
		id, err := client.Copy(ctx, m.syncer.ObjectID(), name, m.opts.FolderID)
		out.ID = id
		return remoteErr("backup copy", err)
	})
	if err != nil {
		m.warn("full backup failed", "name", name, "error", err)
		return Info{}, err
	}

	m.markDone(now)
	m.info("full backup created", "name", name, "id", out.ID)
	return out, nil
}

// SparseBackup uploads the occupied slots as an .npz archive named name. An
// empty name picks the timestamped default. A store without occupied slots
// uploads nothing and still counts as backed up.
func (m *Manager) SparseBackup(ctx context.Context, name string) (Info, error) {
	now := m.opts.Now()
	if name == "" {
		name = Name(ModeSparse, now)
	}

	reserve := int64(m.store.OccupiedRows()) * int64(m.store.Dimension()) * 16
	rc := m.syncer.Resources()
	if err := rc.AcquireMemory(ctx, reserve); err != nil {
		return Info{}, err
	}
	defer rc.ReleaseMemory(reserve)

	indices, values, err := m.store.SparseSnapshot()
	if err != nil {
		return Info{}, err
	}
	if len(indices) == 0 {
		m.markDone(now)
		m.info("sparse backup skipped, store is empty")
		return Info{Mode: ModeSparse, CreatedAt: now.UTC()}, nil
	}

	tmp := filepath.Join(m.opts.TempDir, name)
	defer func() {
		if err := fs.RemoveIfExists(m.opts.FS, tmp); err != nil {
			m.warn("removing sparse archive failed", "path", tmp, "error", err)
		}
	}()

	size, err := m.writeArchive(tmp, indices, values)
	if err != nil {
		return Info{}, fmt.Errorf("backup: writing archive: %w", err)
	}

	out := Info{Name: name, Mode: ModeSparse, CreatedAt: now.UTC(), Size: size}
	err = m.remoteOp(ctx, func(ctx context.Context, client remote.ObjectStore) error {
		f, err := m.opts.FS.OpenFile(tmp, os.O_RDONLY, 0)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		id, err := client.Create(ctx, name, m.opts.FolderID, resource.LimitReader(ctx, f, rc))
		out.ID = id
		return remoteErr("backup upload", err)
	})
	if err != nil {
		m.warn("sparse backup failed", "name", name, "error", err)
		return Info{}, err
	}

	m.markDone(now)
	m.info("sparse backup created", "name", name, "id", out.ID, "values", len(values), "bytes", size)
	return out, nil
}

func (m *Manager) compressionLevel() int {
	if m.opts.CompressionLevel != 0 {
		return m.opts.CompressionLevel
	}
	if m.opts.Compression == npz.CompressionDeflate {
		return -1
	}
	return 0
}

func (m *Manager) writeArchive(path string, indices []int64, values []float64) (int64, error) {
	f, err := m.opts.FS.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	cw := &countingWriter{w: f}
	err = func() error {
		w, err := npz.NewWriter(cw, m.opts.Compression, m.compressionLevel())
		if err != nil {
			return err
		}
		if err := w.WriteInt64("indices", indices); err != nil {
			return err
		}
		if err := w.WriteFloat64("values", values); err != nil {
			return err
		}
		if err := w.WriteInt64("shape", []int64{int64(m.store.Capacity())}); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		return f.Sync()
	}()
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// List returns all backups, newest first.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	client, err := m.syncer.Client()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, m.syncer.Timeout())
	defer cancel()

	objs, err := client.List(ctx, NamePrefix)
	if err != nil {
		return nil, remoteErr("list backups", err)
	}

	out := make([]Info, 0, len(objs))
	for _, o := range objs {
		mode, ts, ok := ParseName(o.Name)
		if !ok {
			continue
		}
		if ts.IsZero() {
			ts = o.ModifiedTime.UTC()
		}
		out = append(out, Info{ID: o.ID, Name: o.Name, Mode: mode, CreatedAt: ts, Size: o.Size})
	}
	slices.SortStableFunc(out, func(a, b Info) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Name, a.Name)
	})
	return out, nil
}

func (m *Manager) find(ctx context.Context, id string) (Info, error) {
	backups, err := m.List(ctx)
	if err != nil {
		return Info{}, err
	}
	for _, b := range backups {
		if b.ID == id || b.Name == id {
			return b, nil
		}
	}
	return Info{}, fmt.Errorf("backup %q: %w", id, remote.ErrNotFound)
}

// Latest returns the newest backup.
func (m *Manager) Latest(ctx context.Context) (Info, error) {
	backups, err := m.List(ctx)
	if err != nil {
		return Info{}, err
	}
	if len(backups) == 0 {
		return Info{}, fmt.Errorf("no backups: %w", remote.ErrNotFound)
	}
	return backups[0], nil
}

// Restore replaces the store content with a backup, given by id or name. A
// full backup goes through the same download and atomic replacement as a
// pull. A sparse backup is validated completely before the store is cleared
// and rewritten.
func (m *Manager) Restore(ctx context.Context, id string) (Info, error) {
	b, err := m.find(ctx, id)
	if err != nil {
		return Info{}, err
	}

	err = m.remoteOp(ctx, func(ctx context.Context, client remote.ObjectStore) error {
		if b.Mode == ModeFull {
			return m.syncer.PullObject(ctx, b.ID)
		}
		return m.restoreSparse(ctx, client, b)
	})
	if err != nil {
		m.warn("restore failed", "name", b.Name, "error", err)
		return Info{}, err
	}
	m.info("backup restored", "name", b.Name, "mode", b.Mode)
	return b, nil
}

func (m *Manager) restoreSparse(ctx context.Context, client remote.ObjectStore, b Info) error {
	rc, err := client.Get(ctx, b.ID)
	if err != nil {
		return remoteErr("restore", err)
	}
	defer func() { _ = rc.Close() }()

	tmp := filepath.Join(m.opts.TempDir, b.Name+".restore")
	defer func() { _ = fs.RemoveIfExists(m.opts.FS, tmp) }()
	size, err := fs.WriteFile(m.opts.FS, tmp, resource.LimitReader(ctx, rc, m.syncer.Resources()))
	if err != nil {
		if ctx.Err() != nil {
			return remoteErr("restore", ctx.Err())
		}
		return fmt.Errorf("backup: writing download: %w", err)
	}

	f, err := m.opts.FS.OpenFile(tmp, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	capacity := m.store.Capacity()
	r, err := npz.NewReader(f, size, capacity)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	shape, err := r.Int64("shape")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	if len(shape) != 1 || shape[0] != int64(capacity) {
		return fmt.Errorf("%w: shape %v does not match capacity %d", ErrInvalidArchive, shape, capacity)
	}
	indices, err := r.Int64("indices")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	values, err := r.Float64("values")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	if len(indices) != len(values) {
		return fmt.Errorf("%w: %d indices for %d values", ErrInvalidArchive, len(indices), len(values))
	}

	slots := make([]int, len(indices))
	for k, i := range indices {
		if i < 0 || i >= int64(capacity) {
			return fmt.Errorf("%w: index %d out of range", ErrInvalidArchive, i)
		}
		slots[k] = int(i)
	}

	if err := m.store.Clear(); err != nil {
		return err
	}
	if _, err := m.store.Write(slots, values); err != nil {
		return err
	}
	if err := m.store.Flush(); err != nil {
		return err
	}
	m.syncer.MarkDiverged()
	return nil
}

// Prune deletes all but the newest keep backups and returns how many were
// deleted. A negative keep uses the configured retention; a retention of 0
// keeps everything.
func (m *Manager) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = m.opts.Keep
		if keep == 0 {
			return 0, nil
		}
	}

	backups, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		return 0, nil
	}
	victims := backups[keep:]

	var deleted atomic.Int64
	err = m.remoteOp(ctx, func(ctx context.Context, client remote.ObjectStore) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(pruneConcurrency)
		for _, b := range victims {
			g.Go(func() error {
				if err := client.Delete(gctx, b.ID); err != nil && !errors.Is(err, remote.ErrNotFound) {
					return remoteErr("delete "+b.Name, err)
				}
				deleted.Add(1)
				return nil
			})
		}
		return g.Wait()
	})

	n := int(deleted.Load())
	m.info("pruned backups", "deleted", n, "kept", keep)
	return n, err
}
