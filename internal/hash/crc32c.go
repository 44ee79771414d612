package hash

import (
	"hash"
	"hash/crc32"
	"io"
)

// crc32cTable is pre-computed for CRC32-Castagnoli polynomial.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// NewCRC32C returns a new CRC32-Castagnoli hash.Hash32.
func NewCRC32C() hash.Hash32 {
	return crc32.New(crc32cTable)
}

// ReaderCRC32C drains r and returns its checksum and length.
func ReaderCRC32C(r io.Reader) (uint32, int64, error) {
	h := NewCRC32C()
	n, err := io.Copy(h, r)
	if err != nil {
		return 0, n, err
	}
	return h.Sum32(), n, nil
}
