package backup

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsync/internal/npz"
	"github.com/hupe1980/vecsync/remote"
	"github.com/hupe1980/vecsync/remotesync"
	"github.com/hupe1980/vecsync/resource"
	"github.com/hupe1980/vecsync/slotstore"
	"github.com/hupe1980/vecsync/testutil"
)

const testCapacity = 64

type fixture struct {
	store  *slotstore.Store
	mem    *remote.MemoryStore
	syncer *remotesync.Syncer
	tmp    string
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := slotstore.Open(filepath.Join(t.TempDir(), "memory.bin"), slotstore.Options{Capacity: testCapacity, Dimension: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mem := remote.NewMemoryStore()
	syncer, err := remotesync.New(store, remotesync.StaticConnector(mem), remotesync.Options{})
	require.NoError(t, err)
	require.NoError(t, syncer.Authenticate(context.Background()))

	return &fixture{
		store:  store,
		mem:    mem,
		syncer: syncer,
		tmp:    t.TempDir(),
		now:    time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC),
	}
}

func (f *fixture) manager(t *testing.T, opts Options) *Manager {
	t.Helper()
	opts.TempDir = f.tmp
	if opts.Now == nil {
		opts.Now = func() time.Time { return f.now }
	}
	m, err := New(f.store, f.syncer, opts)
	require.NoError(t, err)
	return m
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFullBackup(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.AddRecord([]float64{1, 2, 3, 4})
	require.NoError(t, err)

	m := f.manager(t, Options{FolderID: "backups"})
	info, err := m.FullBackup(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "hextrix_memory_backup_20240309T080706Z.bin", info.Name)
	assert.Equal(t, ModeFull, info.Mode)
	assert.Equal(t, f.now, m.LastBackup())

	primary, ok := f.mem.Bytes(f.syncer.ObjectID())
	require.True(t, ok)
	copied, ok := f.mem.Bytes(info.ID)
	require.True(t, ok)
	assert.Equal(t, primary, copied, "backup is a byte-identical copy of the pushed primary")
	assert.Len(t, copied, testCapacity*slotstore.SlotSize)

	parent, _ := f.mem.ParentOf(info.ID)
	assert.Equal(t, "backups", parent)
	assert.Equal(t, 1, f.mem.Calls(remote.OpUpdate), "pushed first")
}

func TestFullBackup_FailureKeepsLastBackup(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, Options{})

	f.mem.Fail(remote.OpCopy, errors.New("quota"))
	_, err := m.FullBackup(context.Background(), "nightly.bin")
	assert.ErrorIs(t, err, remotesync.ErrRemoteUnavailable)
	assert.True(t, m.LastBackup().IsZero())
}

func TestSparseBackup_EmptyStore(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, Options{Mode: ModeSparse})
	creates := f.mem.Calls(remote.OpCreate)

	info, err := m.CreateBackup(context.Background())
	require.NoError(t, err)
	assert.Empty(t, info.ID)
	assert.Equal(t, creates, f.mem.Calls(remote.OpCreate), "nothing uploaded")
	assert.Equal(t, f.now, m.LastBackup())
	assertTempDirEmpty(t, f.tmp)
}

func TestSparseBackup_Archive(t *testing.T) {
	for _, c := range []npz.Compression{npz.CompressionDeflate, npz.CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			f := newFixture(t)
			start, err := f.store.AddRecord([]float64{0.5, 0, -2, 8})
			require.NoError(t, err)

			m := f.manager(t, Options{Mode: ModeSparse, Compression: c})
			info, err := m.CreateBackup(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "hextrix_memory_backup_20240309T080706Z.npz", info.Name)
			assertTempDirEmpty(t, f.tmp)

			data, ok := f.mem.Bytes(info.ID)
			require.True(t, ok)
			assert.Equal(t, int64(len(data)), info.Size)

			r, err := npz.NewReader(bytes.NewReader(data), int64(len(data)), 0)
			require.NoError(t, err)
			indices, err := r.Int64("indices")
			require.NoError(t, err)
			values, err := r.Float64("values")
			require.NoError(t, err)
			shape, err := r.Int64("shape")
			require.NoError(t, err)

			s := int64(start)
			assert.Equal(t, []int64{s, s + 2, s + 3}, indices, "zero slots are left out")
			assert.Equal(t, []float64{0.5, -2, 8}, values)
			assert.Equal(t, []int64{testCapacity}, shape)
		})
	}
}

func TestSparseBackup_UploadFailureCleansUp(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.AddRecord([]float64{1, 1, 1, 1})
	require.NoError(t, err)

	m := f.manager(t, Options{Mode: ModeSparse})
	f.mem.Fail(remote.OpCreate, errors.New("network down"))

	_, err = m.SparseBackup(context.Background(), "")
	assert.ErrorIs(t, err, remotesync.ErrRemoteUnavailable)
	assert.True(t, m.LastBackup().IsZero())
	assertTempDirEmpty(t, f.tmp)
}

func TestSparseBackup_MemoryLimit(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.AddRecord([]float64{1, 1, 1, 1})
	require.NoError(t, err)

	syncer, err := remotesync.New(f.store, remotesync.StaticConnector(f.mem), remotesync.Options{
		Resources: resource.NewController(resource.Config{MemoryLimitBytes: 16}),
	})
	require.NoError(t, err)
	require.NoError(t, syncer.Authenticate(context.Background()))
	f.syncer = syncer

	_, err = f.manager(t, Options{Mode: ModeSparse}).SparseBackup(context.Background(), "")
	assert.ErrorIs(t, err, resource.ErrMemoryLimit)
}

func TestBackup_NotAuthenticated(t *testing.T) {
	f := newFixture(t)
	syncer, err := remotesync.New(f.store, remotesync.StaticConnector(f.mem), remotesync.Options{})
	require.NoError(t, err)
	f.syncer = syncer
	m := f.manager(t, Options{})

	_, err = m.FullBackup(context.Background(), "")
	assert.ErrorIs(t, err, remotesync.ErrRemoteUnavailable)
	_, err = m.List(context.Background())
	assert.ErrorIs(t, err, remotesync.ErrNotAuthenticated)
}

func TestList_NewestFirst(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.AddRecord([]float64{1, 2, 3, 4})
	require.NoError(t, err)

	m := f.manager(t, Options{Mode: ModeSparse})
	var want []string
	for i := 0; i < 3; i++ {
		info, err := m.SparseBackup(context.Background(), "")
		require.NoError(t, err)
		want = append([]string{info.Name}, want...)
		f.now = f.now.Add(time.Hour)
	}
	_, err = f.mem.Create(context.Background(), "unrelated.bin", "", bytes.NewReader(nil))
	require.NoError(t, err)

	backups, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 3)
	for i, b := range backups {
		assert.Equal(t, want[i], b.Name)
		assert.Equal(t, ModeSparse, b.Mode)
	}

	latest, err := m.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want[0], latest.Name)
}

func TestRestore_Sparse(t *testing.T) {
	f := newFixture(t)
	start, err := f.store.AddRecord([]float64{1, 2, 3, 4})
	require.NoError(t, err)

	m := f.manager(t, Options{Mode: ModeSparse, Compression: npz.CompressionZstd})
	info, err := m.CreateBackup(context.Background())
	require.NoError(t, err)

	other, err := f.store.AddRecord([]float64{9, 9, 9, 9})
	require.NoError(t, err)

	restored, err := m.Restore(context.Background(), info.Name)
	require.NoError(t, err)
	assert.Equal(t, info.ID, restored.ID)

	got, err := f.store.ReadRow(start)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, got)
	got, err = f.store.ReadRow(other)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, got)
	assert.Equal(t, 1, f.store.OccupiedRows())
	assert.Equal(t, remotesync.StateDiverged, f.syncer.State())
}

func TestRestore_SparseScatteredSlots(t *testing.T) {
	f := newFixture(t)
	rng := testutil.NewRNG(21)
	indices, values := rng.SparseSlots(40, testCapacity)
	_, err := f.store.Write(indices, values)
	require.NoError(t, err)

	m := f.manager(t, Options{Mode: ModeSparse})
	info, err := m.CreateBackup(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.store.Clear())
	_, err = m.Restore(context.Background(), info.ID)
	require.NoError(t, err)

	got, err := f.store.Read(indices)
	require.NoError(t, err)
	assert.Equal(t, values, got)

	all := make([]int, testCapacity)
	for i := range all {
		all[i] = i
	}
	everything, err := f.store.Read(all)
	require.NoError(t, err)
	nonZero := 0
	for _, v := range everything {
		if v != 0 {
			nonZero++
		}
	}
	assert.Equal(t, len(indices), nonZero, "only the backed up slots are set")
}

func TestRestore_Full(t *testing.T) {
	f := newFixture(t)
	start, err := f.store.AddRecord([]float64{1, 2, 3, 4})
	require.NoError(t, err)

	m := f.manager(t, Options{})
	info, err := m.CreateBackup(context.Background())
	require.NoError(t, err)

	_, err = f.store.Write([]int{start}, []float64{42})
	require.NoError(t, err)

	_, err = m.Restore(context.Background(), info.ID)
	require.NoError(t, err)
	got, err := f.store.ReadRow(start)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, got)
}

func TestRestore_ShapeMismatch(t *testing.T) {
	f := newFixture(t)
	start, err := f.store.AddRecord([]float64{5, 5, 5, 5})
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := npz.NewWriter(&buf, npz.CompressionDeflate, -1)
	require.NoError(t, err)
	require.NoError(t, w.WriteInt64("indices", []int64{0}))
	require.NoError(t, w.WriteFloat64("values", []float64{1}))
	require.NoError(t, w.WriteInt64("shape", []int64{testCapacity * 2}))
	require.NoError(t, w.Close())
	name := Name(ModeSparse, f.now)
	_, err = f.mem.Create(context.Background(), name, "", &buf)
	require.NoError(t, err)

	m := f.manager(t, Options{})
	_, err = m.Restore(context.Background(), name)
	assert.ErrorIs(t, err, ErrInvalidArchive)

	got, err := f.store.ReadRow(start)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 5, 5, 5}, got, "store untouched")
}

func TestRestore_Unknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager(t, Options{}).Restore(context.Background(), "nope")
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestPrune(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.AddRecord([]float64{1, 2, 3, 4})
	require.NoError(t, err)

	m := f.manager(t, Options{Mode: ModeSparse, Keep: 2})
	for i := 0; i < 5; i++ {
		_, err := m.CreateBackup(context.Background())
		require.NoError(t, err)
		f.now = f.now.Add(24 * time.Hour)
	}

	deleted, err := m.Prune(context.Background(), -1)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	backups, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, Name(ModeSparse, f.now.Add(-24*time.Hour)), backups[0].Name)

	deleted, err = m.Prune(context.Background(), 5)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestDue(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, Options{Mode: ModeSparse, FrequencyDays: 2})
	assert.True(t, m.Due(f.now), "never backed up")

	_, err := m.CreateBackup(context.Background())
	require.NoError(t, err)
	assert.False(t, m.Due(f.now.Add(47*time.Hour)))
	assert.True(t, m.Due(f.now.Add(48*time.Hour)))

	assert.False(t, f.manager(t, Options{}).Due(f.now), "no cadence configured")
}

func TestNaming(t *testing.T) {
	ts := time.Date(2023, 12, 31, 23, 59, 58, 0, time.FixedZone("x", 3600))
	name := Name(ModeFull, ts)
	assert.Equal(t, "hextrix_memory_backup_20231231T225958Z.bin", name)

	mode, parsed, ok := ParseName(name)
	require.True(t, ok)
	assert.Equal(t, ModeFull, mode)
	assert.True(t, parsed.Equal(ts))

	mode, parsed, ok = ParseName("hextrix_memory_backup_custom.npz")
	require.True(t, ok)
	assert.Equal(t, ModeSparse, mode)
	assert.True(t, parsed.IsZero())

	_, _, ok = ParseName("hextrix_memory.bin")
	assert.False(t, ok)

	m, err := ParseMode("SPARSE")
	require.NoError(t, err)
	assert.Equal(t, ModeSparse, m)
	_, err = ParseMode("incremental")
	assert.Error(t, err)
}
