package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hupe1980/vecsync/remote"
)

const listFields = "nextPageToken, files(id, name, modifiedTime, size)"

// Store implements remote.ObjectStore on the Drive v3 API.
type Store struct {
	srv *drive.Service
}

var _ remote.ObjectStore = (*Store)(nil)

// New creates a Drive client from opts, e.g. option.WithCredentialsFile.
func New(ctx context.Context, opts ...option.ClientOption) (*Store, error) {
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithScopes(drive.DriveFileScope)}
	}
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gdrive: create service: %w", err)
	}
	return NewStore(srv), nil
}

// NewStore wraps an existing Drive service.
func NewStore(srv *drive.Service) *Store {
	return &Store{srv: srv}
}

func translate(err error, id string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, id)
	}
	return err
}

// Create uploads r as a new file.
func (s *Store) Create(ctx context.Context, name, parentID string, r io.Reader) (string, error) {
	meta := &drive.File{Name: name}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	f, err := s.srv.Files.Create(meta).
		Media(r).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("gdrive: create %s: %w", name, err)
	}
	return f.Id, nil
}

// Update replaces a file's content.
func (s *Store) Update(ctx context.Context, id string, r io.Reader) error {
	_, err := s.srv.Files.Update(id, &drive.File{}).
		Media(r).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	return translate(err, id)
}

// Get downloads a file's content.
func (s *Store) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := s.srv.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, translate(err, id)
	}
	return resp.Body, nil
}

// Copy duplicates a file on the server.
func (s *Store) Copy(ctx context.Context, id, newName, parentID string) (string, error) {
	meta := &drive.File{Name: newName}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	f, err := s.srv.Files.Copy(id, meta).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", translate(err, id)
	}
	return f.Id, nil
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// List queries non-trashed files. Drive's "contains" operator matches name
// prefixes per word, so results are filtered again for an exact prefix.
func (s *Store) List(ctx context.Context, nameFilter string) ([]remote.ObjectInfo, error) {
	q := "trashed = false"
	if nameFilter != "" {
		q += fmt.Sprintf(" and name contains '%s'", queryEscaper.Replace(nameFilter))
	}

	var out []remote.ObjectInfo
	err := s.srv.Files.List().
		Q(q).
		Fields(listFields).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		PageSize(100).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				if !remote.MatchName(f.Name, nameFilter) {
					continue
				}
				info := remote.ObjectInfo{ID: f.Id, Name: f.Name, Size: f.Size}
				if f.ModifiedTime != "" {
					t, err := time.Parse(time.RFC3339, f.ModifiedTime)
					if err != nil {
						return fmt.Errorf("gdrive: file %s: bad modifiedTime %q: %w", f.Id, f.ModifiedTime, err)
					}
					info.ModifiedTime = t
				}
				out = append(out, info)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete permanently removes a file, bypassing the trash.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.srv.Files.Delete(id).SupportsAllDrives(true).Context(ctx).Do()
	return translate(err, id)
}
