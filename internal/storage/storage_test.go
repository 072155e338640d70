package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetshop/apiserver/config"
)

type memoryBackend struct {
	objects map[string][]byte
	closed  bool
}

func (m *memoryBackend) EnsureBucket(context.Context) error { return nil }

func (m *memoryBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memoryBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.objects[key])), nil
}

func (m *memoryBackend) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryBackend) Bucket() string { return "test" }

func (m *memoryBackend) Close() error {
	m.closed = true
	return nil
}

func TestStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := &memoryBackend{objects: map[string][]byte{}}
	s := NewStorage(backend)

	require.NoError(t, s.EnsureBucket(ctx))
	require.NoError(t, s.Put(ctx, "snapshots/a.json", bytes.NewReader([]byte(`{"count":0}`)), 11, "application/json"))

	rc, err := s.Get(ctx, "snapshots/a.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":0}`, string(data))

	require.NoError(t, s.Delete(ctx, "snapshots/a.json"))
	assert.Empty(t, backend.objects)
	assert.Equal(t, "test", s.Bucket())

	require.NoError(t, s.Close())
	assert.True(t, backend.closed)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StorageConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(ctx, config.StorageConfig{Backend: "floppy"})
	require.Error(t, err)

	_, err = Open(ctx, config.StorageConfig{Backend: "minio"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")

	_, err = Open(ctx, config.StorageConfig{Backend: "s3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")

	_, err = Open(ctx, config.StorageConfig{Backend: "gcs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestNewS3Client_CustomEndpoint(t *testing.T) {
	client, err := NewS3Client(context.Background(), config.S3Config{
		Endpoint:  "http://localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "sweets",
	})
	require.NoError(t, err)
	assert.Equal(t, "sweets", client.Bucket())
	assert.Equal(t, defaultS3Region, client.region)
	assert.True(t, client.client.Options().UsePathStyle)
}

func TestNewMinioClient_Validates(t *testing.T) {
	_, err := NewMinioClient(config.MinioConfig{Endpoint: "localhost:9000"})
	require.Error(t, err)

	client, err := NewMinioClient(config.MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "sweets",
	})
	require.NoError(t, err)
	assert.Equal(t, "sweets", client.Bucket())
}

func TestNewMinioClient_ReportsEveryMissingField(t *testing.T) {
	_, err := NewMinioClient(config.MinioConfig{Endpoint: "localhost:9000", Bucket: "sweets"})
	require.EqualError(t, err, "minio access key, secret key required")
}

func TestIsMinioNotFound(t *testing.T) {
	assert.True(t, isMinioNotFound(minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}))
	assert.True(t, isMinioNotFound(minio.ErrorResponse{StatusCode: http.StatusNotFound}))
	assert.False(t, isMinioNotFound(minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}))
	assert.False(t, isMinioNotFound(errors.New("connection refused")))
}
