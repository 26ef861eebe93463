// Package minio stores snapshots and manifests on MinIO or any other
// S3-compatible server (Ceph, Garage, SeaweedFS) through minio-go.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "books/")
//	db, err := hnswfield.Open(ctx, hnswfield.WithBlobStore(store))
//
// Connect builds the client from an endpoint and static credentials and
// creates the bucket when it is missing.
package minio
