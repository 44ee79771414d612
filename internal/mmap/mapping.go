package mmap

import (
	"io"
	"os"
	"sync/atomic"
)

// Handle is the subset of *os.File needed to create a mapping.
type Handle interface {
	Fd() uintptr
	Stat() (os.FileInfo, error)
}

// Mapping represents a writable shared mapping of a file.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	data   []byte
	closed atomic.Bool

	flush func([]byte) error
	unmap func([]byte) error
}

// Map maps the first size bytes of f read-write and shared, so that writes
// through Bytes() are visible in the file. The file must already be at least
// size bytes long. f may be closed after Map returns.
func Map(f Handle, size int) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < int64(size) {
		return nil, ErrInvalidSize
	}

	data, flush, unmap, err := osMap(f, size)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:  data,
		flush: flush,
		unmap: unmap,
	}, nil
}

// Close unmaps the memory. It is idempotent.
// Dirty pages are not flushed explicitly; call Sync first when durability matters.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil // Already closed
	}
	data := m.data
	m.data = nil
	if m.unmap != nil && data != nil {
		return m.unmap(data)
	}
	return nil
}

// Bytes returns the mapped byte slice.
// Warning: The slice is valid only until Close() is called.
// Accessing the slice after Close() results in undefined behavior (likely a crash).
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return len(m.data)
}

// Sync synchronously writes dirty pages back to the file.
func (m *Mapping) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.flush == nil || len(m.data) == 0 {
		return nil
	}
	return m.flush(m.data)
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if len(m.data) == 0 {
		return nil
	}
	return osAdvise(m.data, pattern)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (n int, err error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n = copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
