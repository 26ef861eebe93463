// Package s3 stores snapshots and manifests in Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("books/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	db, err := hnswfield.Open(ctx, hnswfield.WithBlobStore(store))
//
// Concurrent writers sharing a prefix should wrap the store in a
// DDBCommitStore so that CURRENT is advanced with a conditional write.
//
// # Features
//
//   - Range reads
//   - Multipart uploads above the configured part size
//   - CRC32C integrity checks on single-part uploads
//   - Automatic pagination for listing
package s3
