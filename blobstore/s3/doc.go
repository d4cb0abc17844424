// Package s3 provides an Amazon S3 implementation of blobstore.Store,
// plus a DynamoDB-backed commit pointer for coordinating writers.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil { ... }
//
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "indexes/orders/")
//
// Snapshots uploaded through Put use multipart uploads with CRC32C
// integrity validation. Listing paginates automatically.
package s3
