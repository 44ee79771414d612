// Package npz reads and writes NumPy .npy arrays and .npz archives.
//
// Only what sparse backups need is supported: little-endian, C-ordered,
// one-dimensional int64 ('<i8') and float64 ('<f8') arrays. Archives written
// with CompressionDeflate load directly with numpy.load; CompressionZstd
// members use the WinZip zstd method (93) and need a zstd-aware zip reader.
package npz
