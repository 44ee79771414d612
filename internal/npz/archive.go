package npz

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Compression selects how archive members are compressed.
type Compression int

const (
	// CompressionDeflate is numpy.savez_compressed compatible.
	CompressionDeflate Compression = iota
	// CompressionZstd uses zstd members (zip method 93).
	CompressionZstd
	// CompressionStore writes members uncompressed, like numpy.savez.
	CompressionStore
)

func (c Compression) String() string {
	switch c {
	case CompressionDeflate:
		return "deflate"
	case CompressionZstd:
		return "zstd"
	case CompressionStore:
		return "store"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// ParseCompression parses a configuration spelling.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "deflate", "zip":
		return CompressionDeflate, nil
	case "zstd":
		return CompressionZstd, nil
	case "store", "none":
		return CompressionStore, nil
	default:
		return 0, fmt.Errorf("npz: unknown compression %q", s)
	}
}

// Writer writes named arrays into a .npz archive.
type Writer struct {
	zw     *zip.Writer
	method uint16
	names  []string
}

// NewWriter returns a Writer on w. level is the deflate level (-2..9, -1 for
// the default) or the zstd level (1..22, 0 for the default), ignored for
// CompressionStore.
func NewWriter(w io.Writer, c Compression, level int) (*Writer, error) {
	zw := zip.NewWriter(w)
	aw := &Writer{zw: zw}

	switch c {
	case CompressionDeflate:
		if level < flate.ConstantCompression || level > flate.BestCompression {
			return nil, fmt.Errorf("npz: deflate level %d out of range", level)
		}
		aw.method = zip.Deflate
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
	case CompressionZstd:
		if level < 0 || level > 22 {
			return nil, fmt.Errorf("npz: zstd level %d out of range", level)
		}
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if level > 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		aw.method = zstd.ZipMethodWinZip
		zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(opts...))
	case CompressionStore:
		aw.method = zip.Store
	default:
		return nil, fmt.Errorf("npz: unknown compression %v", c)
	}
	return aw, nil
}

func (w *Writer) create(name string) (io.Writer, error) {
	if slices.Contains(w.names, name) {
		return nil, fmt.Errorf("npz: duplicate array %q", name)
	}
	w.names = append(w.names, name)
	return w.zw.CreateHeader(&zip.FileHeader{
		Name:     name + ".npy",
		Method:   w.method,
		Modified: time.Now().UTC(),
	})
}

// WriteInt64 adds an int64 array member.
func (w *Writer) WriteInt64(name string, data []int64) error {
	f, err := w.create(name)
	if err != nil {
		return err
	}
	return WriteInt64(f, data)
}

// WriteFloat64 adds a float64 array member.
func (w *Writer) WriteFloat64(name string, data []float64) error {
	f, err := w.create(name)
	if err != nil {
		return err
	}
	return WriteFloat64(f, data)
}

// Close finishes the archive. It does not close the underlying writer.
func (w *Writer) Close() error {
	return w.zw.Close()
}

// Reader reads named arrays from a .npz archive.
type Reader struct {
	zr    *zip.Reader
	limit int
}

// NewReader opens an archive of the given size. limit caps the element count
// of any array read; 0 disables the cap.
func NewReader(r io.ReaderAt, size int64, limit int) (*Reader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	return &Reader{zr: zr, limit: limit}, nil
}

// Names returns the array names in archive order.
func (r *Reader) Names() []string {
	names := make([]string, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		names = append(names, strings.TrimSuffix(f.Name, ".npy"))
	}
	return names
}

func (r *Reader) open(name string) (io.ReadCloser, error) {
	for _, f := range r.zr.File {
		if f.Name == name+".npy" || f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("%w: no array %q", ErrFormat, name)
}

// Int64 reads an int64 array member.
func (r *Reader) Int64(name string) ([]int64, error) {
	rc, err := r.open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return ReadInt64(rc, r.limit)
}

// Float64 reads a float64 array member.
func (r *Reader) Float64(name string) ([]float64, error) {
	rc, err := r.open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return ReadFloat64(rc, r.limit)
}
