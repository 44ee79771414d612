package minio

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/vecsync/remote"
)

// Store implements remote.ObjectStore for MinIO and S3-compatible storage.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ remote.ObjectStore = (*Store)(nil)

// NewStore creates a new MinIO object store.
// bucket is the MinIO bucket name.
// rootPrefix is prepended to all keys (e.g. "vecsync/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(rootPrefix, "/"),
	}
}

func (s *Store) key(id string) string {
	return path.Join(s.prefix, id)
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (s *Store) stat(ctx context.Context, id string) error {
	_, err := s.client.StatObject(ctx, s.bucket, s.key(id), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", remote.ErrNotFound, id)
		}
		return err
	}
	return nil
}

func (s *Store) put(ctx context.Context, id string, r io.Reader) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(id), r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

// Create streams a new object to parentID/name.
func (s *Store) Create(ctx context.Context, name, parentID string, r io.Reader) (string, error) {
	id := path.Join(parentID, name)
	if err := s.put(ctx, id, r); err != nil {
		return "", err
	}
	return id, nil
}

// Update replaces an existing object.
func (s *Store) Update(ctx context.Context, id string, r io.Reader) error {
	if err := s.stat(ctx, id); err != nil {
		return err
	}
	return s.put(ctx, id, r)
}

// Get streams an object. The object is stat'ed first because GetObject
// only reports a missing key on the first read.
func (s *Store) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := s.stat(ctx, id); err != nil {
		return nil, err
	}
	return s.client.GetObject(ctx, s.bucket, s.key(id), minio.GetObjectOptions{})
}

// Copy performs a server-side copy.
func (s *Store) Copy(ctx context.Context, id, newName, parentID string) (string, error) {
	newID := path.Join(parentID, newName)
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: s.key(newID)},
		minio.CopySrcOptions{Bucket: s.bucket, Object: s.key(id)},
	)
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", remote.ErrNotFound, id)
		}
		return "", err
	}
	return newID, nil
}

// List returns the objects below the root prefix whose base name matches.
func (s *Store) List(ctx context.Context, nameFilter string) ([]remote.ObjectInfo, error) {
	opts := minio.ListObjectsOptions{Recursive: true}
	if s.prefix != "" {
		opts.Prefix = s.prefix + "/"
	}

	var out []remote.ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		// Strip our root prefix
		id := strings.TrimPrefix(strings.TrimPrefix(obj.Key, s.prefix), "/")
		name := path.Base(id)
		if id == "" || !remote.MatchName(name, nameFilter) {
			continue
		}
		out = append(out, remote.ObjectInfo{ID: id, Name: name, ModifiedTime: obj.LastModified, Size: obj.Size})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.stat(ctx, id); err != nil {
		return err
	}
	return s.client.RemoveObject(ctx, s.bucket, s.key(id), minio.RemoveObjectOptions{})
}
