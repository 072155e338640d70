package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetshop/apiserver/internal/store"
)

type memoryBucket struct {
	ensured     bool
	ensureErr   error
	objects     map[string][]byte
	contentType string
}

func (b *memoryBucket) EnsureBucket(context.Context) error {
	b.ensured = true
	return b.ensureErr
}

func (b *memoryBucket) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return err
	}
	if n != size {
		return errors.New("size mismatch")
	}
	if b.objects == nil {
		b.objects = make(map[string][]byte)
	}
	b.objects[key] = buf.Bytes()
	b.contentType = contentType
	return nil
}

func (b *memoryBucket) Bucket() string {
	return "snapshots-test"
}

func TestCatalogExporter_Export(t *testing.T) {
	repo := store.NewMemorySweetRepository()
	inventory := NewInventoryService(repo)
	mustCreate(t, inventory, "Gulab Jamun", "Indian", 50, 100)
	mustCreate(t, inventory, "Brownie", "Western", 80, 5)

	bucket := &memoryBucket{}
	exporter := NewCatalogExporter(repo, bucket, nil)
	exporter.now = func() time.Time { return time.Unix(1700000000, 0) }

	key, count, err := exporter.Export(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "snapshots/catalog-1700000000.json", key)
	assert.Equal(t, 2, count)
	assert.True(t, bucket.ensured)
	assert.Equal(t, "application/json", bucket.contentType)

	var snapshot CatalogSnapshot
	require.NoError(t, json.Unmarshal(bucket.objects[key], &snapshot))
	assert.Equal(t, 2, snapshot.Count)
	require.Len(t, snapshot.Sweets, 2)
	assert.Equal(t, "Brownie", snapshot.Sweets[0].Name)
}

func TestCatalogExporter_CustomKeyAndBucketError(t *testing.T) {
	repo := store.NewMemorySweetRepository()

	bucket := &memoryBucket{}
	key, count, err := NewCatalogExporter(repo, bucket, nil).Export(context.Background(), "daily/latest.json")
	require.NoError(t, err)
	assert.Equal(t, "daily/latest.json", key)
	assert.Equal(t, 0, count)

	failing := &memoryBucket{ensureErr: errors.New("denied")}
	_, _, err = NewCatalogExporter(repo, failing, nil).Export(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure bucket")
	assert.Empty(t, failing.objects)
}
