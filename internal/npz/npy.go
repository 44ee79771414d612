package npz

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	magic = "\x93NUMPY"

	descrInt64   = "<i8"
	descrFloat64 = "<f8"

	// headerAlign is the alignment numpy uses for the data section.
	headerAlign = 64
)

// ErrFormat is returned for malformed or unsupported .npy data.
var ErrFormat = errors.New("npz: unsupported or malformed array")

// header is the parsed .npy header dictionary.
type header struct {
	descr string
	shape []int
}

func (h header) count() int {
	n := 1
	for _, d := range h.shape {
		n *= d
	}
	return n
}

// writeHeader writes a version 1.0 header for a 1-D array of n elements.
func writeHeader(w io.Writer, descr string, n int) error {
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%d,), }", descr, n)

	// magic(6) + version(2) + header length(2) + dict + padding + '\n'
	pre := len(magic) + 2 + 2
	total := pre + len(dict) + 1
	pad := (headerAlign - total%headerAlign) % headerAlign
	hlen := len(dict) + pad + 1
	if hlen > math.MaxUint16 {
		return fmt.Errorf("%w: header too long", ErrFormat)
	}

	var buf bytes.Buffer
	buf.Grow(pre + hlen)
	buf.WriteString(magic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(hlen))
	buf.WriteString(dict)
	buf.WriteString(strings.Repeat(" ", pad))
	buf.WriteByte('\n')

	_, err := w.Write(buf.Bytes())
	return err
}

var (
	descrRe = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	shapeRe = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// readHeader parses a version 1.0, 2.0 or 3.0 header.
func readHeader(r io.Reader) (header, error) {
	var h header

	pre := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(r, pre); err != nil {
		return h, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if string(pre[:len(magic)]) != magic {
		return h, fmt.Errorf("%w: bad magic", ErrFormat)
	}

	var hlen int
	switch major := pre[len(magic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return h, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		hlen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return h, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		if n > 1<<20 {
			return h, fmt.Errorf("%w: header length %d", ErrFormat, n)
		}
		hlen = int(n)
	default:
		return h, fmt.Errorf("%w: version %d", ErrFormat, major)
	}

	raw := make([]byte, hlen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return h, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	dict := string(raw)

	m := descrRe.FindStringSubmatch(dict)
	if m == nil {
		return h, fmt.Errorf("%w: missing descr", ErrFormat)
	}
	h.descr = m[1]

	m = shapeRe.FindStringSubmatch(dict)
	if m == nil {
		return h, fmt.Errorf("%w: missing shape", ErrFormat)
	}
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 {
			return h, fmt.Errorf("%w: shape %q", ErrFormat, m[1])
		}
		h.shape = append(h.shape, d)
	}
	return h, nil
}

func checkVector(h header, descr string) error {
	if h.descr != descr {
		return fmt.Errorf("%w: dtype %q, want %q", ErrFormat, h.descr, descr)
	}
	// Fortran order only matters for more than one dimension.
	if len(h.shape) > 1 {
		return fmt.Errorf("%w: %d-dimensional array", ErrFormat, len(h.shape))
	}
	return nil
}

// WriteInt64 writes data as a 1-D '<i8' .npy array.
func WriteInt64(w io.Writer, data []int64) error {
	if err := writeHeader(w, descrInt64, len(data)); err != nil {
		return err
	}
	buf := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	_, err := w.Write(buf)
	return err
}

// WriteFloat64 writes data as a 1-D '<f8' .npy array.
func WriteFloat64(w io.Writer, data []float64) error {
	if err := writeHeader(w, descrFloat64, len(data)); err != nil {
		return err
	}
	buf := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	_, err := w.Write(buf)
	return err
}

func readPayload(r io.Reader, h header, limit int) ([]byte, error) {
	n := h.count()
	if limit > 0 && n > limit {
		return nil, fmt.Errorf("%w: %d elements exceed limit %d", ErrFormat, n, limit)
	}
	buf := make([]byte, 8*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: short payload: %w", ErrFormat, err)
	}
	return buf, nil
}

// ReadInt64 reads a 1-D '<i8' .npy array. limit caps the element count; 0
// disables the cap.
func ReadInt64(r io.Reader, limit int) ([]int64, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if err := checkVector(h, descrInt64); err != nil {
		return nil, err
	}
	buf, err := readPayload(r, h, limit)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(buf)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}

// ReadFloat64 reads a 1-D '<f8' .npy array. limit caps the element count; 0
// disables the cap.
func ReadFloat64(r io.Reader, limit int) ([]float64, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if err := checkVector(h, descrFloat64); err != nil {
		return nil, err
	}
	buf, err := readPayload(r, h, limit)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}
