package fs

import (
	"io"
	"os"
)

// File represents an open file.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.WriterAt
	io.Seeker
	Sync() error
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
	// Fd returns the OS file descriptor, used for memory mapping.
	Fd() uintptr
	Name() string
}

// FileSystem abstracts file system operations for testability.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	ReadDir(name string) ([]os.DirEntry, error)
}

// LocalFS implements FileSystem using the local os package.
type LocalFS struct{}

func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (LocalFS) Remove(name string) error              { return os.Remove(name) }
func (LocalFS) Rename(oldpath, newpath string) error  { return os.Rename(oldpath, newpath) }
func (LocalFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (LocalFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
func (LocalFS) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }

// Default is the default local file system.
var Default FileSystem = LocalFS{}

// Exists reports whether name exists. Errors other than "not exist" are
// reported as existing so callers never clobber a file they cannot stat.
func Exists(fsys FileSystem, name string) bool {
	_, err := fsys.Stat(name)
	return err == nil || !os.IsNotExist(err)
}

// RemoveIfExists removes name, ignoring "not exist" errors.
func RemoveIfExists(fsys FileSystem, name string) error {
	if err := fsys.Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CopyFile copies src to dst (created or truncated) and syncs dst.
func CopyFile(fsys FileSystem, src, dst string) (int64, error) {
	in, err := fsys.OpenFile(src, os.O_RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()

	return WriteFile(fsys, dst, in)
}

// WriteFile streams r into name (created or truncated) and syncs it.
// A partially written file is left behind on error; callers write to
// temporary names and clean up.
func WriteFile(fsys FileSystem, name string, r io.Reader) (int64, error) {
	out, err := fsys.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, r)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// SyncDir syncs a directory so that renames and creates inside it are durable.
func SyncDir(fsys FileSystem, dir string) error {
	f, err := fsys.OpenFile(dir, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }() // Sync is the important operation
	return f.Sync()
}
