// Package vecsync provides a local, memory-mapped vector store that is kept
// in step with a remote object store.
//
// Vectors live in a fixed-capacity array of float64 slots backed by a raw
// little-endian file. The file is mapped with MAP_SHARED so writes become
// durable without an explicit save; if it cannot be created or mapped the
// engine keeps running on a heap array (degraded mode).
//
// # Quick Start
//
// Local only:
//
//	ctx := context.Background()
//	e, _ := vecsync.Open(ctx, "./hextrix_memory.bin", vecsync.WithDimension(128))
//	defer e.Close()
//
//	idx, _ := e.Store(ctx, vector)
//	results, _ := e.Search(ctx, query, 10)
//
// With a remote object store:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "memories", "vecsync/")
//	e, _ := vecsync.Open(ctx, path,
//	    vecsync.WithDimension(128),
//	    vecsync.WithRemote(store),
//	    vecsync.WithAutoSyncInterval(time.Hour),
//	)
//
//	e.SyncPush(ctx) // upload the whole file
//	e.SyncPull(ctx) // replace the local file, keeping ".bak"
//
// # Backups
//
// Full backups copy the pushed object; sparse backups upload a NumPy .npz
// archive holding only the occupied slots:
//
//	info, _ := e.Backup(ctx, backup.ModeSparse)
//	e.Restore(ctx, info.ID)
//
// # Concurrency
//
// Store, Read and Search are safe for concurrent use. Remote operations take
// an exclusive slot; automatic pushes skip instead of waiting for it. A pull
// or restore replaces the backing file and must not overlap reads that
// expect the old content.
package vecsync
