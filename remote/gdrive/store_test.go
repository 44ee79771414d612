package gdrive

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/hupe1980/vecsync/remote"
)

func newTestStore(t *testing.T) (*Store, *fakeDrive) {
	t.Helper()
	fd, srv := newFakeDrive(t)
	store, err := New(context.Background(),
		option.WithEndpoint(srv.URL+"/drive/v3/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return store, fd
}

func download(t *testing.T, s *Store, id string) string {
	t.Helper()
	rc, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, fd := newTestStore(t)

	id, err := s.Create(ctx, "memory.bin", "", strings.NewReader("first"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, "first", download(t, s, id))

	require.NoError(t, s.Update(ctx, id, strings.NewReader("second")))
	assert.Equal(t, "second", download(t, s, id))

	copyID, err := s.Copy(ctx, id, "hextrix_memory_backup_20240101T000000Z.bin", "folder-1")
	require.NoError(t, err)
	assert.NotEqual(t, id, copyID)
	assert.Equal(t, []string{"folder-1"}, fd.parents(copyID))
	assert.Equal(t, "second", download(t, s, copyID))

	objs, err := s.List(ctx, "hextrix_memory_backup_")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, copyID, objs[0].ID)
	assert.Equal(t, int64(len("second")), objs[0].Size)
	assert.False(t, objs[0].ModifiedTime.IsZero())

	found, err := remote.FindByName(ctx, s, "memory.bin")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)

	require.NoError(t, s.Delete(ctx, copyID))
	_, err = s.Get(ctx, copyID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, copyID), remote.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, copyID, strings.NewReader("x")), remote.ErrNotFound)
	_, err = s.Copy(ctx, copyID, "x", "")
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestStore_ListEscapesQuotes(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Create(ctx, "it's.bin", "", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = s.Create(ctx, "other.bin", "", strings.NewReader("y"))
	require.NoError(t, err)

	objs, err := s.List(ctx, "it's")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "it's.bin", objs[0].Name)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
