package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsync"
	"github.com/hupe1980/vecsync/backup"
	"github.com/hupe1980/vecsync/config"
	"github.com/hupe1980/vecsync/remote"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestParseFloats(t *testing.T) {
	v, err := parseFloats([]string{"1,2.5", " -3 ", "4,"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, -3, 4}, v)

	_, err = parseFloats([]string{"1,x"})
	assert.Error(t, err)
	_, err = parseFloats([]string{","})
	assert.Error(t, err)

	idx, err := parseInts([]string{"0,4", "8"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 8}, idx)
	_, err = parseInts([]string{"1.5"})
	assert.Error(t, err)
}

func TestNewBackend(t *testing.T) {
	b, err := newBackend(context.Background(), config.RemoteConfig{Backend: config.BackendNone})
	require.NoError(t, err)
	assert.Nil(t, b.connector)

	b, err = newBackend(context.Background(), config.RemoteConfig{Backend: config.BackendLocal, Local: config.LocalConfig{Root: t.TempDir()}})
	require.NoError(t, err)
	store, err := b.connector(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, store)

	b, err = newBackend(context.Background(), config.RemoteConfig{Backend: config.BackendMinIO, MinIO: config.MinIOConfig{Endpoint: "localhost:9000", Bucket: "b"}})
	require.NoError(t, err)
	assert.NotNil(t, b.connector)

	_, err = newBackend(context.Background(), config.RemoteConfig{Backend: "ftp"})
	assert.Error(t, err)
}

func TestSchedulerConfig(t *testing.T) {
	cfg := config.Default()
	sc := schedulerConfig(cfg, nil)
	assert.Zero(t, sc.AutoSyncInterval)
	assert.Zero(t, sc.BackupFrequencyDays)

	cfg.Remote.Backend = config.BackendLocal
	cfg.Backup.Keep = 3
	sc = schedulerConfig(cfg, nil)
	assert.Equal(t, time.Hour, sc.AutoSyncInterval)
	assert.Equal(t, 7, sc.BackupFrequencyDays)
	assert.True(t, sc.Prune)
}

func TestServeTarget_ExternalWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.bin")
	e, err := vecsync.Open(ctx, path, vecsync.WithCapacity(8), vecsync.WithDimension(2),
		vecsync.WithRemote(remote.NewMemoryStore()), vecsync.WithAutoSyncInterval(-1))
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	target := serveTarget{Engine: e, path: path}
	assert.True(t, target.Dirty(), "never pushed")
	require.NoError(t, e.SyncPush(ctx))
	assert.False(t, target.Dirty())

	// Another process writing the shared file moves its mtime.
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	assert.True(t, target.Dirty())

	require.NoError(t, e.SyncPush(ctx))
	earlier := e.Syncer().LastSync().Add(-time.Minute)
	require.NoError(t, os.Chtimes(path, earlier, earlier))
	assert.False(t, target.Dirty())
}

func TestCLI_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "vecsync.yaml")

	run(t, "init", "--config", cfgPath)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	cfg.LocalCachePath = filepath.Join(dir, "memory.bin")
	cfg.LocalCacheSize = 256
	cfg.Dimension = 2
	cfg.Remote.Backend = config.BackendLocal
	cfg.Remote.Local.Root = filepath.Join(dir, "remote")
	cfg.Remote.AutoSyncInterval = 0
	cfg.Backup.Mode = "sparse"
	require.NoError(t, config.Write(cfgPath, cfg))

	assert.Contains(t, run(t, "put", "--config", cfgPath, "1,0"), "Stored at 0")
	assert.Contains(t, run(t, "put", "--config", cfgPath, "0", "1"), "Stored at 2")

	out := run(t, "search", "--config", cfgPath, "--json", "-k", "1", "1,0.1")
	var results []struct{ Index int }
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Index)

	assert.Contains(t, run(t, "push", "--config", cfgPath, "--json=false"), "Pushed hextrix_memory.bin")
	assert.FileExists(t, filepath.Join(dir, "remote", "hextrix_memory.bin"))

	assert.Contains(t, run(t, "backup", "create", "--config", cfgPath, "--json=false"), "Backup created: hextrix_memory_backup_")

	out = run(t, "backup", "list", "--config", cfgPath, "--json")
	var list []backup.Info
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, backup.ModeSparse, list[0].Mode)

	assert.Contains(t, run(t, "get", "--config", cfgPath, "--json=false", "--row", "2"), "[[0 1]]")
}
