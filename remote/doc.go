// Package remote defines the object store vecsync pushes to, pulls from and
// keeps backups in.
//
// ObjectStore is deliberately small: whole-object create, replace, download,
// server-side copy, listing by name and delete. Objects are addressed by an
// opaque id assigned at creation. Implementations must be safe for
// concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process store for tests
//   - LocalStore: a local directory standing in for a remote
//   - s3.Store: Amazon S3, with a DynamoDB ledger in s3.DDBLedger
//   - minio.Store: MinIO and other S3-compatible services
//   - gdrive.Store: Google Drive
//
// # Custom Implementations
//
//	type ObjectStore interface {
//	    Create(ctx, name, parentID, r) (id, error)
//	    Update(ctx, id, r) error
//	    Get(ctx, id) (io.ReadCloser, error)
//	    Copy(ctx, id, newName, parentID) (id, error)
//	    List(ctx, nameFilter) ([]ObjectInfo, error)
//	    Delete(ctx, id) error
//	}
//
// Return an error satisfying errors.Is(err, ErrNotFound) for unknown ids.
package remote
