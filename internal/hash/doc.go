// Package hash provides checksums for payload integrity.
//
// Every pushed payload is summarised with CRC32-Castagnoli (CRC32C) so a later
// pull can reject a download that does not match what was uploaded. Go's
// hash/crc32 uses SSE4.2 / ARM CRC instructions when available.
//
//	checksum := hash.CRC32C(data)
//
//	sum, n, err := hash.ReaderCRC32C(file)
package hash
