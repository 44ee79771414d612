package remotesync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecsync/internal/fs"
	"github.com/hupe1980/vecsync/internal/hash"
	"github.com/hupe1980/vecsync/remote"
	"github.com/hupe1980/vecsync/resource"
	"github.com/hupe1980/vecsync/slotstore"
)

const (
	// DefaultObjectName is the name of the primary remote object.
	DefaultObjectName = "hextrix_memory.bin"

	// DefaultTimeout bounds every remote operation.
	DefaultTimeout = 5 * time.Minute

	// DefaultAutoSyncInterval is the minimum age of the last sync before an
	// opportunistic push runs.
	DefaultAutoSyncInterval = time.Hour

	downloadSuffix = ".downloading"
	backupSuffix   = ".bak"
)

// State is the position of a Syncer in its lifecycle.
type State int

const (
	// StateUninitialized means no remote handle exists. Local operation is unaffected.
	StateUninitialized State = iota
	// StateAuthenticated means the remote object is known but nothing was transferred yet.
	StateAuthenticated
	// StateSynced means local and remote content were equal after the last push or pull.
	StateSynced
	// StateDiverged means local writes happened after the last sync.
	StateDiverged
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAuthenticated:
		return "authenticated"
	case StateSynced:
		return "synced"
	case StateDiverged:
		return "diverged"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Connector produces an authenticated object store. It is the opaque
// credentials capability; how it authenticates is up to the caller.
type Connector func(ctx context.Context) (remote.ObjectStore, error)

// StaticConnector returns a Connector that always yields s.
func StaticConnector(s remote.ObjectStore) Connector {
	return func(context.Context) (remote.ObjectStore, error) {
		if s == nil {
			return nil, errors.New("no object store configured")
		}
		return s, nil
	}
}

// Options configures a Syncer.
type Options struct {
	// ObjectName is the name of the primary remote object. If empty, DefaultObjectName is used.
	ObjectName string

	// ParentID places a newly created primary object inside a folder.
	ParentID string

	// Timeout bounds each remote operation. If 0, DefaultTimeout is used.
	Timeout time.Duration

	// AutoSyncInterval is the minimum age of the last sync before
	// MaybeAutoPush pushes. If 0, DefaultAutoSyncInterval is used; negative
	// disables auto-push.
	AutoSyncInterval time.Duration

	// Ledger, when set, records every push and lets Pull verify checksums.
	Ledger remote.Ledger

	// Resources serializes remote operations and throttles transfers.
	// If nil, a private controller with one exclusive remote slot is used.
	Resources *resource.Controller

	// FS is the filesystem of the backing file. It must be the one the
	// store uses. If nil, fs.Default is used.
	FS fs.FileSystem

	// Logger may be nil.
	Logger *slog.Logger

	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time
}

func (o *Options) normalize() {
	if o.ObjectName == "" {
		o.ObjectName = DefaultObjectName
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.AutoSyncInterval == 0 {
		o.AutoSyncInterval = DefaultAutoSyncInterval
	}
	if o.Resources == nil {
		o.Resources = resource.NewController(resource.Config{})
	}
	if o.FS == nil {
		o.FS = fs.Default
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Syncer synchronizes one store with one remote object.
type Syncer struct {
	store   *slotstore.Store
	connect Connector
	opts    Options

	mu         sync.Mutex
	state      State
	client     remote.ObjectStore
	objectID   string
	lastSync   time.Time
	generation uint64
	needsPull  bool
	writes     uint64
}

// New creates a Syncer in StateUninitialized.
func New(store *slotstore.Store, connect Connector, opts Options) (*Syncer, error) {
	if store == nil {
		return nil, errors.New("remotesync: nil store")
	}
	if connect == nil {
		return nil, errors.New("remotesync: nil connector")
	}
	opts.normalize()
	return &Syncer{store: store, connect: connect, opts: opts}, nil
}

// State returns the current state.
func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSync returns the time of the last successful push or pull.
func (s *Syncer) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// ObjectID returns the id of the primary remote object, or "" before Authenticate.
func (s *Syncer) ObjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objectID
}

// ObjectName returns the configured primary object name.
func (s *Syncer) ObjectName() string { return s.opts.ObjectName }

// Generation returns the ledger generation of the last push or pull.
func (s *Syncer) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Client returns the authenticated object store, or ErrNotAuthenticated.
func (s *Syncer) Client() (remote.ObjectStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, ErrNotAuthenticated
	}
	return s.client, nil
}

// Resources returns the controller that serializes remote operations.
func (s *Syncer) Resources() *resource.Controller { return s.opts.Resources }

// Timeout returns the per-operation remote timeout.
func (s *Syncer) Timeout() time.Duration { return s.opts.Timeout }

// MarkDirty records a local write. A synced store becomes diverged.
func (s *Syncer) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.state == StateSynced {
		s.state = StateDiverged
	}
}

// MarkDiverged forces StateDiverged on an authenticated syncer, for callers
// that replaced local content by other means. The replaced content no longer
// needs a pull.
func (s *Syncer) MarkDiverged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.needsPull = false
	if s.state != StateUninitialized {
		s.state = StateDiverged
	}
}

// MarkNeedsPull records that the local file is older than the remote object,
// for example after it was restored from ".bak". Pushes are refused with
// ErrPullRequired until a Pull succeeds.
func (s *Syncer) MarkNeedsPull() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needsPull = true
}

// NeedsPull reports whether a Pull must succeed before the next push.
func (s *Syncer) NeedsPull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsPull
}

func (s *Syncer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.Timeout)
}

func (s *Syncer) warn(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, args...)
	}
}

func (s *Syncer) info(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Info(msg, args...)
	}
}

// Authenticate runs the connector and locates or creates the primary object.
// On failure the syncer stays in StateUninitialized.
func (s *Syncer) Authenticate(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	client, err := s.connect(ctx)
	if err != nil {
		s.warn("remote authentication failed, continuing local-only", "error", err)
		return remoteErr("authenticate", err)
	}
	if client == nil {
		return remoteErr("authenticate", errors.New("connector returned no object store"))
	}

	id, err := locateOrCreate(ctx, client, s.opts.ObjectName, s.opts.ParentID)
	if err != nil {
		s.warn("locating remote object failed, continuing local-only", "object", s.opts.ObjectName, "error", err)
		return remoteErr("locate", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = client
	s.objectID = id
	if s.state == StateUninitialized {
		s.state = StateAuthenticated
	}
	s.info("remote authenticated", "object", s.opts.ObjectName, "id", id)
	return nil
}

// LocateOrCreate returns the id of the object called name, creating an empty
// placeholder once when none exists. When several objects share the name the
// newest wins.
func (s *Syncer) LocateOrCreate(ctx context.Context, name string) (string, error) {
	client, err := s.Client()
	if err != nil {
		return "", err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	id, err := locateOrCreate(ctx, client, name, s.opts.ParentID)
	return id, remoteErr("locate", err)
}

func locateOrCreate(ctx context.Context, client remote.ObjectStore, name, parentID string) (string, error) {
	found, err := remote.FindByName(ctx, client, name)
	if err != nil {
		return "", err
	}
	if len(found) > 0 {
		return found[0].ID, nil
	}
	return client.Create(ctx, name, parentID, bytes.NewReader(nil))
}

// Push uploads the whole backing file to the primary object. It waits for
// the remote slot.
func (s *Syncer) Push(ctx context.Context) error {
	if _, err := s.Client(); err != nil {
		return err
	}
	if s.NeedsPull() {
		return ErrPullRequired
	}
	if err := AcquireSlot(ctx, s.opts.Resources); err != nil {
		return err
	}
	defer s.opts.Resources.ReleaseRemote()
	return s.push(ctx)
}

// MaybeAutoPush pushes when the syncer is authenticated and the last sync
// is older than the auto-sync interval. It never waits for a busy remote
// slot and never pushes while a pull is pending. Failures are logged and returned for accounting; callers on the
// write path ignore them.
func (s *Syncer) MaybeAutoPush(ctx context.Context) (bool, error) {
	if s.opts.AutoSyncInterval < 0 {
		return false, nil
	}
	s.mu.Lock()
	due := s.client != nil && !s.needsPull &&
		(s.lastSync.IsZero() || s.opts.Now().Sub(s.lastSync) >= s.opts.AutoSyncInterval)
	s.mu.Unlock()
	if !due {
		return false, nil
	}

	if !s.opts.Resources.TryAcquireRemote() {
		return false, nil
	}
	defer s.opts.Resources.ReleaseRemote()

	if err := s.push(ctx); err != nil {
		s.warn("auto-push failed", "object", s.opts.ObjectName, "error", err)
		return false, err
	}
	return true, nil
}

func (s *Syncer) push(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tmp, size, writes, err := s.stage()
	if err != nil {
		return err
	}
	defer func() {
		if err := fs.RemoveIfExists(s.opts.FS, tmp); err != nil {
			s.warn("removing push copy failed", "path", tmp, "error", err)
		}
	}()

	client, err := s.Client()
	if err != nil {
		return err
	}
	s.mu.Lock()
	id := s.objectID
	s.mu.Unlock()

	crc, err := s.upload(ctx, client, id, tmp)
	if errors.Is(err, remote.ErrNotFound) {
		// The primary object was removed behind our back; recreate it.
		s.warn("remote object vanished, recreating", "object", s.opts.ObjectName, "id", id)
		id, err = s.create(ctx, client, tmp)
	}
	if err != nil {
		return remoteErr("push", err)
	}

	now := s.opts.Now()
	s.mu.Lock()
	s.objectID = id
	s.lastSync = now
	// A write that landed after staging is not in the uploaded copy.
	if s.writes == writes {
		s.state = StateSynced
	} else {
		s.state = StateDiverged
	}
	s.mu.Unlock()

	s.info("pushed", "object", s.opts.ObjectName, "id", id, "bytes", size)

	return s.commit(ctx, remote.Record{ObjectID: id, Size: size, CRC32C: crc, PushedAt: now})
}

// stage writes a consistent copy of the store to a temporary file so the
// upload never reads a file that is mapped and being written. It also returns
// the write count observed before copying.
func (s *Syncer) stage() (string, int64, uint64, error) {
	s.mu.Lock()
	writes := s.writes
	s.mu.Unlock()

	if s.store.Degraded() {
		tmp := filepath.Join(os.TempDir(), fmt.Sprintf("vecsync-push-%s", uuid.NewString()))
		n, err := s.writeSnapshot(tmp)
		if err != nil {
			_ = fs.RemoveIfExists(s.opts.FS, tmp)
			return "", 0, 0, fmt.Errorf("remotesync: staging snapshot: %w", err)
		}
		return tmp, n, writes, nil
	}

	if err := s.store.Flush(); err != nil {
		return "", 0, 0, fmt.Errorf("remotesync: flush before push: %w", err)
	}
	tmp := fmt.Sprintf("%s.push-%s", s.store.Path(), uuid.NewString())
	n, err := fs.CopyFile(s.opts.FS, s.store.Path(), tmp)
	if err != nil {
		_ = fs.RemoveIfExists(s.opts.FS, tmp)
		return "", 0, 0, fmt.Errorf("remotesync: copying backing file: %w", err)
	}
	return tmp, n, writes, nil
}

func (s *Syncer) writeSnapshot(name string) (int64, error) {
	f, err := s.opts.FS.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := s.store.Snapshot(f)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

func (s *Syncer) openStaged(ctx context.Context, tmp string) (fs.File, io.Reader, error) {
	f, err := s.opts.FS.OpenFile(tmp, os.O_RDONLY, 0)
	if err != nil {
		return nil, nil, err
	}
	return f, resource.LimitReader(ctx, f, s.opts.Resources), nil
}

func (s *Syncer) upload(ctx context.Context, client remote.ObjectStore, id, tmp string) (uint32, error) {
	f, r, err := s.openStaged(ctx, tmp)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	h := hash.NewCRC32C()
	if err := client.Update(ctx, id, io.TeeReader(r, h)); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

func (s *Syncer) create(ctx context.Context, client remote.ObjectStore, tmp string) (string, error) {
	f, r, err := s.openStaged(ctx, tmp)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return client.Create(ctx, s.opts.ObjectName, s.opts.ParentID, r)
}

// commit appends a ledger record for a finished push. The remote object is
// already replaced at this point, so a conflict is reported but not undone.
func (s *Syncer) commit(ctx context.Context, rec remote.Record) error {
	if s.opts.Ledger == nil {
		return nil
	}
	latest, ok, err := s.opts.Ledger.Latest(ctx, s.opts.ObjectName)
	if err != nil {
		s.warn("reading sync ledger failed", "object", s.opts.ObjectName, "error", err)
		return remoteErr("ledger", err)
	}
	rec.Generation = 1
	if ok {
		rec.Generation = latest.Generation + 1
	}
	if err := s.opts.Ledger.Commit(ctx, s.opts.ObjectName, rec); err != nil {
		s.warn("committing push to ledger failed", "object", s.opts.ObjectName, "generation", rec.Generation, "error", err)
		if errors.Is(err, remote.ErrConcurrentModification) {
			return fmt.Errorf("remotesync: generation %d: %w", rec.Generation, err)
		}
		return remoteErr("ledger", err)
	}

	s.mu.Lock()
	s.generation = rec.Generation
	s.mu.Unlock()
	return nil
}

// Pull replaces the local store with the primary object. The download goes
// to a ".downloading" file next to the backing file; only a complete,
// verified download is swapped in. The previous file is kept as ".bak".
func (s *Syncer) Pull(ctx context.Context) error {
	if _, err := s.Client(); err != nil {
		return err
	}
	if err := AcquireSlot(ctx, s.opts.Resources); err != nil {
		return err
	}
	defer s.opts.Resources.ReleaseRemote()

	s.mu.Lock()
	id := s.objectID
	s.mu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var want *remote.Record
	if s.opts.Ledger != nil {
		rec, ok, err := s.opts.Ledger.Latest(ctx, s.opts.ObjectName)
		if err != nil {
			return remoteErr("ledger", err)
		}
		if ok && rec.ObjectID == id {
			want = &rec
		}
	}

	if err := s.replace(ctx, id, want); err != nil {
		return err
	}

	s.mu.Lock()
	s.lastSync = s.opts.Now()
	s.state = StateSynced
	s.needsPull = false
	if want != nil {
		s.generation = want.Generation
	}
	s.mu.Unlock()

	s.info("pulled", "object", s.opts.ObjectName, "id", id)
	return nil
}

// PullObject replaces the local store with an arbitrary object, such as a
// full backup. The caller must hold the remote slot. The store is left
// diverged from the primary object.
func (s *Syncer) PullObject(ctx context.Context, id string) error {
	if _, err := s.Client(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.replace(ctx, id, nil); err != nil {
		return err
	}
	s.MarkDiverged()
	return nil
}

func (s *Syncer) replace(ctx context.Context, id string, want *remote.Record) error {
	client, err := s.Client()
	if err != nil {
		return err
	}

	tmp := s.store.Path() + downloadSuffix
	if s.store.Degraded() {
		tmp = filepath.Join(os.TempDir(), fmt.Sprintf("vecsync-pull-%s", uuid.NewString()))
	}
	defer func() {
		if err := fs.RemoveIfExists(s.opts.FS, tmp); err != nil {
			s.warn("removing download failed", "path", tmp, "error", err)
		}
	}()

	crc, n, err := s.download(ctx, client, id, tmp)
	if err != nil {
		return err
	}

	expected := int64(s.store.Capacity()) * slotstore.SlotSize
	if n != expected {
		return &PayloadError{ObjectID: id, Size: n, Expected: expected}
	}
	if want != nil && want.CRC32C != crc {
		return &PayloadError{ObjectID: id, Size: n, Expected: expected, CRC32C: crc, Want: want.CRC32C}
	}

	if s.store.Degraded() {
		f, err := s.opts.FS.OpenFile(tmp, os.O_RDONLY, 0)
		if err != nil {
			return fmt.Errorf("remotesync: reopening download: %w", err)
		}
		defer func() { _ = f.Close() }()
		return s.store.Load(f)
	}

	return s.store.Swap(func(path string) error {
		return s.install(tmp, path)
	})
}

func (s *Syncer) download(ctx context.Context, client remote.ObjectStore, id, tmp string) (uint32, int64, error) {
	rc, err := client.Get(ctx, id)
	if err != nil {
		return 0, 0, remoteErr("pull", err)
	}
	defer func() { _ = rc.Close() }()

	// The checksum sink is throttled, so every downloaded byte is charged once.
	h := hash.NewCRC32C()
	n, err := fs.WriteFile(s.opts.FS, tmp, io.TeeReader(rc, resource.LimitWriter(ctx, h, s.opts.Resources)))
	if err != nil {
		// A local write failure is not a remote failure; either way the
		// primary is untouched.
		if ctx.Err() != nil {
			return 0, n, remoteErr("pull", ctx.Err())
		}
		return 0, n, fmt.Errorf("remotesync: writing download: %w", err)
	}
	return h.Sum32(), n, nil
}

// install moves the primary to ".bak" and the download into place. When the
// second rename fails the primary is restored from ".bak".
func (s *Syncer) install(tmp, path string) error {
	fsys := s.opts.FS
	bak := path + backupSuffix

	if err := fs.RemoveIfExists(fsys, bak); err != nil {
		return fmt.Errorf("remotesync: removing old backup: %w", err)
	}
	moved := false
	if fs.Exists(fsys, path) {
		if err := fsys.Rename(path, bak); err != nil {
			return fmt.Errorf("remotesync: moving primary aside: %w", err)
		}
		moved = true
	}
	if err := fsys.Rename(tmp, path); err != nil {
		if !moved {
			return fmt.Errorf("remotesync: installing download: %w", err)
		}
		if rerr := fsys.Rename(bak, path); rerr != nil {
			s.warn("restoring primary after failed pull failed", "path", path, "error", rerr)
		}
		return fmt.Errorf("remotesync: installing download: %w", err)
	}
	if err := fs.SyncDir(fsys, filepath.Dir(path)); err != nil {
		s.warn("syncing directory after pull failed", "path", path, "error", err)
	}
	return nil
}

// RecoverPrimary handles a crash between the two renames of a pull: when the
// backing file is missing but a ".bak" exists, the ".bak" is moved back. It
// reports whether that happened, in which case the caller should pull again.
func RecoverPrimary(fsys fs.FileSystem, path string) (bool, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	if path == "" || fs.Exists(fsys, path) {
		return false, nil
	}
	bak := path + backupSuffix
	if _, err := fsys.Stat(bak); err != nil {
		return false, nil
	}
	if err := fsys.Rename(bak, path); err != nil {
		return false, fmt.Errorf("remotesync: restoring %s: %w", bak, err)
	}
	return true, nil
}
