package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hupe1980/vecsync/remote"
)

// Store implements remote.ObjectStore for S3.
type Store struct {
	client   Client
	bucket   string
	prefix   string
	uploader *manager.Uploader
	checksum bool
}

var _ remote.ObjectStore = (*Store)(nil)

// NewStore creates a new S3 object store with DefaultUploadConfig.
// rootPrefix is prepended to all keys (e.g. "vecsync/").
func NewStore(client Client, bucket, rootPrefix string) *Store {
	return NewStoreWithConfig(client, bucket, rootPrefix, DefaultUploadConfig())
}

// NewStoreWithConfig creates a new S3 object store with explicit upload settings.
func NewStoreWithConfig(client Client, bucket, rootPrefix string, cfg UploadConfig) *Store {
	return &Store{
		client:   client,
		bucket:   bucket,
		prefix:   strings.Trim(rootPrefix, "/"),
		uploader: newUploader(client, cfg),
		checksum: cfg.EnableChecksum,
	}
}

func (s *Store) key(id string) string {
	return path.Join(s.prefix, id)
}

func (s *Store) relative(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

func (s *Store) put(ctx context.Context, id string, r io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
		Body:   r,
	}
	if s.checksum {
		input.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("s3: upload %s: %w", id, err)
	}
	return nil
}

// Create uploads a new object at parentID/name. An existing object under
// that key is replaced.
func (s *Store) Create(ctx context.Context, name, parentID string, r io.Reader) (string, error) {
	id := path.Join(parentID, name)
	if err := s.put(ctx, id, r); err != nil {
		return "", err
	}
	return id, nil
}

// Update replaces an existing object.
func (s *Store) Update(ctx context.Context, id string, r io.Reader) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", remote.ErrNotFound, id)
		}
		return err
	}
	return s.put(ctx, id, r)
}

// Get streams an object's content.
func (s *Store) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, id)
		}
		return nil, err
	}
	return resp.Body, nil
}

// Copy performs a server-side copy.
func (s *Store) Copy(ctx context.Context, id, newName, parentID string) (string, error) {
	newID := path.Join(parentID, newName)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.key(newID)),
		CopySource: aws.String(url.PathEscape(s.bucket + "/" + s.key(id))),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", remote.ErrNotFound, id)
		}
		return "", err
	}
	return newID, nil
}

// List pages through every key below the root prefix and keeps those whose
// base name matches nameFilter.
func (s *Store) List(ctx context.Context, nameFilter string) ([]remote.ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}

	var out []remote.ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			id := s.relative(aws.ToString(obj.Key))
			name := path.Base(id)
			if id == "" || !remote.MatchName(name, nameFilter) {
				continue
			}
			out = append(out, remote.ObjectInfo{
				ID:           id,
				Name:         name,
				ModifiedTime: aws.ToTime(obj.LastModified),
				Size:         aws.ToInt64(obj.Size),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes an object. S3 deletes are idempotent, so the object is
// checked first to report remote.ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", remote.ErrNotFound, id)
		}
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	return err
}
