package fs

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.NoError(t, f.Close())

	entries, err := lfs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))
	assert.False(t, Exists(lfs, fpath))
	assert.True(t, Exists(lfs, newPath))

	assert.NoError(t, lfs.Remove(newPath))
	assert.NoError(t, RemoveIfExists(lfs, newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestCopyFile(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src.bin")
	dst := filepath.Join(tmp, "dst.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	n, err := CopyFile(Default, src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestFaultyFS_WriteLimit(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("faulty", Fault{FailAfterBytes: 5})

	fpath := filepath.Join(tmp, "faulty.txt")
	_, err := WriteFile(ffs, fpath, bytes.NewReader([]byte("hello world")))
	assert.ErrorIs(t, err, ErrInjected)

	got, err := os.ReadFile(fpath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	// Files that do not match a rule are untouched.
	_, err = WriteFile(ffs, filepath.Join(tmp, "fine.txt"), bytes.NewReader([]byte("hello world")))
	assert.NoError(t, err)
}

func TestFaultyFS_Rename(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})

	a := filepath.Join(tmp, "a.bin")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))

	ffs.AddRule(".bak", Fault{FailOnRename: true})
	err := ffs.Rename(a, a+".bak")
	assert.ErrorIs(t, err, ErrInjected)
	assert.True(t, Exists(ffs, a))
	assert.Equal(t, 0, ffs.Renames())

	ffs.ClearRules()
	require.NoError(t, ffs.Rename(a, a+".bak"))
	assert.Equal(t, 1, ffs.Renames())
}

func TestFaultyFS_OpenSyncClose(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)

	ffs.AddRule("noopen", Fault{FailOnOpen: true})
	_, err := ffs.OpenFile(filepath.Join(tmp, "noopen.bin"), os.O_CREATE|os.O_RDWR, 0o644)
	assert.ErrorIs(t, err, ErrInjected)

	ffs.AddRule("nosync", Fault{FailOnSync: true})
	f, err := ffs.OpenFile(filepath.Join(tmp, "nosync.bin"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Sync(), ErrInjected)
	assert.NoError(t, f.Close())

	ffs.AddRule("noclose", Fault{FailOnClose: true})
	f, err = ffs.OpenFile(filepath.Join(tmp, "noclose.bin"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Close(), ErrInjected)
}
