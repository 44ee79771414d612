// Package minio provides a remote.ObjectStore implementation using the MinIO client.
//
// MinIO is an S3-compatible object storage system. This package uses the
// official MinIO Go client library, so it also works against Ceph,
// SeaweedFS, Garage and other S3-compatible services without pulling in the
// AWS SDK.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := miniostore.NewStore(client, "my-bucket", "vecsync/")
//
// Object ids are keys relative to the root prefix; a parent id is a key
// prefix.
package minio
