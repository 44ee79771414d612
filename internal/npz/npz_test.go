package npz

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteHeader_Aligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInt64(&buf, []int64{1, 2, 3}))

	data := buf.Bytes()
	hlen := int(data[8]) | int(data[9])<<8
	assert.Zero(t, (10+hlen)%headerAlign, "data section is 64-byte aligned")
	assert.Equal(t, byte('\n'), data[10+hlen-1])
	assert.Contains(t, string(data[10:10+hlen]), "'shape': (3,)")
	assert.Len(t, data, 10+hlen+3*8)
}

func TestNpy_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	values := []float64{1.5, -2, math.Pi, math.SmallestNonzeroFloat64}
	require.NoError(t, WriteFloat64(&buf, values))

	got, err := ReadFloat64(bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)
	assert.Equal(t, values, got)

	_, err = ReadInt64(bytes.NewReader(buf.Bytes()), 0)
	assert.ErrorIs(t, err, ErrFormat, "dtype is checked")

	_, err = ReadFloat64(bytes.NewReader(buf.Bytes()), 2)
	assert.ErrorIs(t, err, ErrFormat, "element limit is enforced")
}

func TestReadHeader_NumpyVersion2(t *testing.T) {
	dict := "{'descr': '<i8', 'fortran_order': False, 'shape': (2,), }\n"
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.Write([]byte{2, 0, byte(len(dict)), 0, 0, 0})
	buf.WriteString(dict)
	buf.Write([]byte{7, 0, 0, 0, 0, 0, 0, 0, 9, 0, 0, 0, 0, 0, 0, 0})

	got, err := ReadInt64(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 9}, got)
}

func TestReadHeader_Rejects(t *testing.T) {
	_, err := ReadInt64(strings.NewReader("not numpy at all"), 0)
	assert.ErrorIs(t, err, ErrFormat)

	dict := "{'descr': '<i8', 'fortran_order': False, 'shape': (2, 2), }\n"
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.Write([]byte{1, 0, byte(len(dict)), 0})
	buf.WriteString(dict)
	_, err = ReadInt64(&buf, 0)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestArchive_RoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionDeflate, CompressionZstd, CompressionStore} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			level := -1
			if c == CompressionZstd {
				level = 3
			}
			w, err := NewWriter(&buf, c, level)
			require.NoError(t, err)

			indices := []int64{0, 5, 1 << 40}
			values := []float64{0.25, -1, 42}
			require.NoError(t, w.WriteInt64("indices", indices))
			require.NoError(t, w.WriteFloat64("values", values))
			require.NoError(t, w.WriteInt64("shape", []int64{1 << 41}))
			assert.Error(t, w.WriteInt64("shape", nil), "duplicate names are rejected")
			require.NoError(t, w.Close())

			r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()), 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"indices", "values", "shape"}, r.Names())

			gotIdx, err := r.Int64("indices")
			require.NoError(t, err)
			assert.Equal(t, indices, gotIdx)

			gotVal, err := r.Float64("values")
			require.NoError(t, err)
			assert.Equal(t, values, gotVal)

			shape, err := r.Int64("shape")
			require.NoError(t, err)
			assert.Equal(t, []int64{1 << 41}, shape)

			_, err = r.Int64("missing")
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestArchive_DeflateCompresses(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, CompressionDeflate, 9)
	require.NoError(t, err)
	require.NoError(t, w.WriteFloat64("values", make([]float64, 10000)))
	require.NoError(t, w.Close())
	assert.Less(t, buf.Len(), 10000*8/10)
}

func TestNewWriter_BadLevel(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, CompressionDeflate, 12)
	assert.Error(t, err)
	_, err = NewWriter(&bytes.Buffer{}, CompressionZstd, 30)
	assert.Error(t, err)
}

func TestNewReader_NotZip(t *testing.T) {
	_, err := NewReader(strings.NewReader("garbage"), 7, 0)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)
	c, err = ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionDeflate, c)
	_, err = ParseCompression("lz4")
	assert.Error(t, err)
}
