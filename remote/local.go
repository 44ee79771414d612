package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/hupe1980/vecsync/internal/fs"
)

// LocalStore implements ObjectStore on a local directory. An object id is
// its slash-separated path below the root; parentID names a sub-directory.
// Writes go to a temporary file that is renamed into place, so readers
// never observe a partial object.
type LocalStore struct {
	root string
	fs   fs.FileSystem
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return NewLocalStoreFS(root, fs.Default)
}

// NewLocalStoreFS is NewLocalStore with an explicit file system.
func NewLocalStoreFS(root string, fsys fs.FileSystem) *LocalStore {
	return &LocalStore{root: root, fs: fsys}
}

// Root returns the directory objects are stored in.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) resolve(id string) (string, error) {
	if id == "" || !filepath.IsLocal(filepath.FromSlash(id)) {
		return "", fmt.Errorf("remote: invalid object id %q", id)
	}
	return filepath.Join(s.root, filepath.FromSlash(id)), nil
}

func (s *LocalStore) put(id string, r io.Reader) error {
	dst, err := s.resolve(id)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp := dst + ".tmp-" + uuid.NewString()
	if _, err := fs.WriteFile(s.fs, tmp, r); err != nil {
		_ = fs.RemoveIfExists(s.fs, tmp)
		return err
	}
	if err := s.fs.Rename(tmp, dst); err != nil {
		_ = fs.RemoveIfExists(s.fs, tmp)
		return err
	}
	return nil
}

func (s *LocalStore) exists(id string) error {
	p, err := s.resolve(id)
	if err != nil {
		return err
	}
	if _, err := s.fs.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}
	return nil
}

// Create writes a new object, replacing any object of the same name in the same folder.
func (s *LocalStore) Create(ctx context.Context, name, parentID string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := path.Join(parentID, name)
	if err := s.put(id, r); err != nil {
		return "", err
	}
	return id, nil
}

// Update replaces an existing object.
func (s *LocalStore) Update(ctx context.Context, id string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.exists(id); err != nil {
		return err
	}
	return s.put(id, r)
}

// Get opens an object for reading.
func (s *LocalStore) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.OpenFile(p, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return f, nil
}

// Copy duplicates an object under newName.
func (s *LocalStore) Copy(ctx context.Context, id, newName, parentID string) (string, error) {
	rc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	return s.Create(ctx, newName, parentID, rc)
}

// List walks the root and its sub-directories.
func (s *LocalStore) List(ctx context.Context, nameFilter string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	if err := s.walk(ctx, "", nameFilter, &out); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *LocalStore) walk(ctx context.Context, dir, filter string, out *[]ObjectInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := s.fs.ReadDir(filepath.Join(s.root, filepath.FromSlash(dir)))
	if err != nil {
		return err
	}
	for _, e := range entries {
		id := path.Join(dir, e.Name())
		if e.IsDir() {
			if err := s.walk(ctx, id, filter, out); err != nil {
				return err
			}
			continue
		}
		if isTemp(e.Name()) || !MatchName(e.Name(), filter) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed while listing
		}
		*out = append(*out, ObjectInfo{ID: id, Name: e.Name(), ModifiedTime: info.ModTime(), Size: info.Size()})
	}
	return nil
}

func isTemp(name string) bool {
	ext := path.Ext(name)
	return len(ext) > len(".tmp-") && ext[:len(".tmp-")] == ".tmp-"
}

// Delete removes an object.
func (s *LocalStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(id)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}
	return nil
}
