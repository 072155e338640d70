package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sweetshop/apiserver/config"
)

const (
	minioNoSuchKey             = "NoSuchKey"
	minioBucketAlreadyOwned    = "BucketAlreadyOwnedByYou"
	minioBucketAlreadyExists   = "BucketAlreadyExists"
	snapshotCacheControl       = "no-cache"
	unknownObjectSize    int64 = -1
)

// MinioClient stores catalog snapshots in a MinIO (or any S3-compatible)
// bucket addressed by endpoint.
type MinioClient struct {
	client *minio.Client
	bucket string
}

// NewMinioClient validates cfg and builds a MinIO client. No request is
// made until the first operation.
func NewMinioClient(cfg config.MinioConfig) (*MinioClient, error) {
	var missing []string
	if strings.TrimSpace(cfg.Endpoint) == "" {
		missing = append(missing, "endpoint")
	}
	if strings.TrimSpace(cfg.AccessKey) == "" {
		missing = append(missing, "access key")
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		missing = append(missing, "secret key")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("minio %s required", strings.Join(missing, ", "))
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioClient{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket when missing. Losing a creation race to
// another exporter is not an error.
func (m *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}

	err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	switch minio.ToErrorResponse(err).Code {
	case minioBucketAlreadyOwned, minioBucketAlreadyExists:
		return nil
	}
	return err
}

// Put uploads a snapshot. A non-positive size streams the body with
// multipart upload.
func (m *MinioClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if size <= 0 {
		size = unknownObjectSize
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: snapshotCacheControl,
	})
	return err
}

// Get opens a snapshot for reading. GetObject is lazy, so the object is
// stat'ed first to report a missing key here rather than on first Read.
func (m *MinioClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isMinioNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return obj, nil
}

// Delete removes a snapshot. MinIO treats a missing key as success.
func (m *MinioClient) Delete(ctx context.Context, key string) error {
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

func (m *MinioClient) Bucket() string {
	return m.bucket
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	if resp.Code == minioNoSuchKey || resp.StatusCode == http.StatusNotFound {
		return true
	}
	return errors.Is(err, ErrObjectNotFound)
}
