package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/sweetshop/apiserver/config"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSClient stores catalog snapshots in a Google Cloud Storage bucket.
type GCSClient struct {
	client    *storage.Client
	handle    *storage.BucketHandle
	bucket    string
	projectID string
}

func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*GCSClient, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSClient{
		client:    client,
		handle:    client.Bucket(bucket),
		bucket:    bucket,
		projectID: strings.TrimSpace(cfg.ProjectID),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist. Creation needs a
// project id. A 409 from a concurrent creator counts as success.
func (g *GCSClient) EnsureBucket(ctx context.Context) error {
	_, err := g.handle.Attrs(ctx)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, storage.ErrBucketNotExist):
		return fmt.Errorf("check bucket %s: %w", g.bucket, err)
	case g.projectID == "":
		return fmt.Errorf("bucket %s does not exist and no gcs project id is set", g.bucket)
	}

	err = g.handle.Create(ctx, g.projectID, nil)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 409 {
		return nil
	}
	return err
}

// Put writes a snapshot. Bodies of known size below one upload chunk are
// sent in a single request.
func (g *GCSClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	w := g.handle.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = snapshotCacheControl
	if size > 0 && size < googleapi.DefaultUploadChunkSize {
		w.ChunkSize = 0
	}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	return w.Close()
}

func (g *GCSClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := g.handle.Object(key).NewReader(ctx)
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return nil, ErrObjectNotFound
	case err != nil:
		return nil, err
	}
	return reader, nil
}

// Delete removes a snapshot. A missing key is not an error.
func (g *GCSClient) Delete(ctx context.Context, key string) error {
	if err := g.handle.Object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

func (g *GCSClient) Bucket() string {
	return g.bucket
}

func (g *GCSClient) Close() error {
	return g.client.Close()
}
