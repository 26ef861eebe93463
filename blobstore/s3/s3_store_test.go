package s3

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hnswfield/blobstore"
)

func TestIntegration_S3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("test-hnswfield-%d/", time.Now().UnixNano())

	cfg := DefaultUploadConfig()
	cfg.PartSize = 5 * 1024 * 1024
	store, err := New(ctx, bucket, WithPrefix(prefix), WithUploadConfig(cfg))
	require.NoError(t, err)

	small := []byte("MANIFEST-000001.json")
	large := make([]byte, 6*1024*1024)
	_, _ = rand.Read(large)

	require.NoError(t, store.Put(ctx, "CURRENT", small))
	require.NoError(t, store.Put(ctx, "fields/large.snap", large))

	got, err := blobstore.ReadAll(ctx, store, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, small, got)

	got, err = blobstore.ReadAll(ctx, store, "fields/large.snap")
	require.NoError(t, err)
	assert.Equal(t, large, got)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"CURRENT", "fields/large.snap"}, names)

	for _, name := range names {
		require.NoError(t, store.Delete(ctx, name))
	}
	_, err = store.Open(ctx, "CURRENT")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
