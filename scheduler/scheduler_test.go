package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsync/backup"
)

type fakeTarget struct {
	mu        sync.Mutex
	dirty     bool
	pushes    int
	backups   int
	prunes    []int
	backupErr error
	notDue    bool
}

func (f *fakeTarget) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

func (f *fakeTarget) SyncPush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes++
	f.dirty = false
	return nil
}

func (f *fakeTarget) CreateBackup(context.Context) (backup.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.backupErr != nil {
		return backup.Info{}, f.backupErr
	}
	f.backups++
	return backup.Info{Name: "b"}, nil
}

func (f *fakeTarget) PruneBackups(_ context.Context, keep int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prunes = append(f.prunes, keep)
	return 1, nil
}

func (f *fakeTarget) BackupDue(time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.notDue
}

func (f *fakeTarget) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes
}

func TestNew_RegistersJobs(t *testing.T) {
	s, err := New(&fakeTarget{}, Config{AutoSyncInterval: time.Hour, BackupFrequencyDays: 7})
	require.NoError(t, err)

	st := s.Status()
	require.Len(t, st, 2)
	assert.Equal(t, JobAutoPush, st[0].Name)
	assert.Equal(t, "@every 1h0m0s", st[0].Schedule)
	assert.Equal(t, JobBackup, st[1].Name)
	assert.Equal(t, "@every 1h0m0s", st[1].Schedule)
}

func TestNew_ScheduleWinsOverFrequency(t *testing.T) {
	s, err := New(&fakeTarget{}, Config{BackupSchedule: "0 3 * * *", BackupFrequencyDays: 7})
	require.NoError(t, err)
	st := s.Status()
	require.Len(t, st, 1)
	assert.Equal(t, "0 3 * * *", st[0].Schedule)
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(&fakeTarget{}, Config{BackupSchedule: "every tuesday"})
	assert.Error(t, err)

	_, err = New(nil, Config{})
	assert.Error(t, err)
}

func TestRunNow_AutoPushOnlyWhenDirty(t *testing.T) {
	target := &fakeTarget{}
	s, err := New(target, Config{AutoSyncInterval: time.Hour})
	require.NoError(t, err)

	require.NoError(t, s.RunNow(context.Background(), JobAutoPush))
	assert.Equal(t, 0, target.pushCount())

	target.dirty = true
	require.NoError(t, s.RunNow(context.Background(), JobAutoPush))
	assert.Equal(t, 1, target.pushCount())

	st := s.Status()
	assert.Equal(t, 2, st[0].Runs)
	assert.Zero(t, st[0].Failures)

	assert.Error(t, s.RunNow(context.Background(), "compact"))
}

func TestRunNow_BackupAndPrune(t *testing.T) {
	target := &fakeTarget{}
	s, err := New(target, Config{BackupFrequencyDays: 1, Prune: true})
	require.NoError(t, err)

	require.NoError(t, s.RunNow(context.Background(), JobBackup))
	assert.Equal(t, 1, target.backups)
	assert.Equal(t, []int{-1}, target.prunes)

	target.backupErr = errors.New("remote unavailable")
	assert.Error(t, s.RunNow(context.Background(), JobBackup))
	st := s.Status()
	assert.Equal(t, 1, st[0].Failures)
	assert.EqualError(t, st[0].LastErr, "remote unavailable")
	assert.Equal(t, []int{-1}, target.prunes)
}

func TestRunNow_BackupSkippedUntilDue(t *testing.T) {
	target := &fakeTarget{notDue: true}
	s, err := New(target, Config{BackupFrequencyDays: 7})
	require.NoError(t, err)

	require.NoError(t, s.RunNow(context.Background(), JobBackup))
	assert.Zero(t, target.backups)

	target.notDue = false
	require.NoError(t, s.RunNow(context.Background(), JobBackup))
	assert.Equal(t, 1, target.backups)
}

func TestRunNow_ScheduleIgnoresDue(t *testing.T) {
	target := &fakeTarget{notDue: true}
	s, err := New(target, Config{BackupSchedule: "@daily", BackupFrequencyDays: 7})
	require.NoError(t, err)

	require.NoError(t, s.RunNow(context.Background(), JobBackup))
	assert.Equal(t, 1, target.backups)
}

func TestStartStop(t *testing.T) {
	target := &fakeTarget{dirty: true}
	s, err := New(target, Config{AutoSyncInterval: time.Second})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	assert.Eventually(t, func() bool { return target.pushCount() == 1 }, 5*time.Second, 50*time.Millisecond)
	s.Stop()
	s.Stop()
}
