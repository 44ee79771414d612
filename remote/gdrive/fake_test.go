package gdrive

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/drive/v3"
)

type fakeFile struct {
	meta drive.File
	data []byte
}

// fakeDrive serves the handful of Drive v3 endpoints the store uses.
type fakeDrive struct {
	mu     sync.Mutex
	files  map[string]*fakeFile
	nextID int
}

func newFakeDrive(t *testing.T) (*fakeDrive, *httptest.Server) {
	t.Helper()
	fd := &fakeDrive{files: make(map[string]*fakeFile)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload/drive/v3/files", fd.create)
	mux.HandleFunc("PATCH /upload/drive/v3/files/{id}", fd.update)
	mux.HandleFunc("GET /drive/v3/files/{id}", fd.get)
	mux.HandleFunc("POST /drive/v3/files/{id}/copy", fd.copy)
	mux.HandleFunc("GET /drive/v3/files", fd.list)
	mux.HandleFunc("DELETE /drive/v3/files/{id}", fd.delete)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fd, srv
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, `{"error":{"code":404,"message":"File not found"}}`)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// readMultipart splits a multipart/related upload into metadata and media.
func readMultipart(r *http.Request) (drive.File, []byte, error) {
	var meta drive.File
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return meta, nil, err
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	part, err := mr.NextPart()
	if err != nil {
		return meta, nil, err
	}
	if err := json.NewDecoder(part).Decode(&meta); err != nil {
		return meta, nil, err
	}
	part, err = mr.NextPart()
	if err != nil {
		return meta, nil, err
	}
	data, err := io.ReadAll(part)
	return meta, data, err
}

func (fd *fakeDrive) touch(f *fakeFile) {
	f.meta.ModifiedTime = time.Now().UTC().Format(time.RFC3339Nano)
	f.meta.Size = int64(len(f.data))
}

func (fd *fakeDrive) add(meta drive.File, data []byte) *fakeFile {
	fd.nextID++
	meta.Id = fmt.Sprintf("file-%d", fd.nextID)
	f := &fakeFile{meta: meta, data: data}
	fd.touch(f)
	fd.files[meta.Id] = f
	return f
}

func (fd *fakeDrive) create(w http.ResponseWriter, r *http.Request) {
	meta, data, err := readMultipart(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fd.mu.Lock()
	f := fd.add(meta, data)
	fd.mu.Unlock()
	writeJSON(w, f.meta)
}

func (fd *fakeDrive) update(w http.ResponseWriter, r *http.Request) {
	_, data, err := readMultipart(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	f, ok := fd.files[r.PathValue("id")]
	if !ok {
		notFound(w)
		return
	}
	f.data = data
	fd.touch(f)
	writeJSON(w, f.meta)
}

func (fd *fakeDrive) get(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	f, ok := fd.files[r.PathValue("id")]
	if !ok {
		notFound(w)
		return
	}
	if r.URL.Query().Get("alt") == "media" {
		_, _ = w.Write(f.data)
		return
	}
	writeJSON(w, f.meta)
}

func (fd *fakeDrive) copy(w http.ResponseWriter, r *http.Request) {
	var meta drive.File
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	src, ok := fd.files[r.PathValue("id")]
	if !ok {
		notFound(w)
		return
	}
	f := fd.add(meta, append([]byte(nil), src.data...))
	writeJSON(w, f.meta)
}

var containsQuery = regexp.MustCompile(`name contains '((?:[^'\\]|\\.)*)'`)

func (fd *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	var term string
	if m := containsQuery.FindStringSubmatch(r.URL.Query().Get("q")); m != nil {
		term = strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(m[1])
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()
	var list drive.FileList
	for _, f := range fd.files {
		if strings.Contains(f.meta.Name, term) {
			meta := f.meta
			list.Files = append(list.Files, &meta)
		}
	}
	writeJSON(w, list)
}

func (fd *fakeDrive) delete(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	id := r.PathValue("id")
	if _, ok := fd.files[id]; !ok {
		notFound(w)
		return
	}
	delete(fd.files, id)
	w.WriteHeader(http.StatusNoContent)
}

func (fd *fakeDrive) parents(id string) []string {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if f, ok := fd.files[id]; ok {
		return f.meta.Parents
	}
	return nil
}
