// Package s3 provides an Amazon S3 implementation of remote.ObjectStore and
// a DynamoDB-backed remote.Ledger.
//
// # Usage
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "vecsync/")
//	ledger := s3.NewDDBLedger(dynamodb.NewFromConfig(cfg), "vecsync-ledger")
//
// Object ids are keys relative to the root prefix; a parent id is a key
// prefix ("folder"). Uploads go through the multipart upload manager with
// CRC32C checksums.
package s3
