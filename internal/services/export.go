package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sweetshop/apiserver/types"
	"go.uber.org/zap"
)

const snapshotContentType = "application/json"

// SnapshotStore is the object storage used for catalog snapshots.
type SnapshotStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Bucket() string
}

// CatalogSnapshot is the document written by CatalogExporter.
type CatalogSnapshot struct {
	ExportedAt time.Time     `json:"exported_at"`
	Count      int           `json:"count"`
	Sweets     []types.Sweet `json:"sweets"`
}

// CatalogExporter writes the full catalog to object storage as JSON.
type CatalogExporter struct {
	repo    SweetRepository
	storage SnapshotStore
	logger  *zap.Logger
	now     func() time.Time
}

func NewCatalogExporter(repo SweetRepository, storage SnapshotStore, logger *zap.Logger) *CatalogExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogExporter{
		repo:    repo,
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// Export uploads a snapshot under key, or under a timestamped key when key
// is empty, and returns the key and the number of sweets written.
func (e *CatalogExporter) Export(ctx context.Context, key string) (string, int, error) {
	sweets, err := e.repo.List(ctx, types.SearchFilter{})
	if err != nil {
		return "", 0, fmt.Errorf("list sweets: %w", err)
	}

	exportedAt := e.now().UTC()
	key = strings.TrimSpace(key)
	if key == "" {
		key = fmt.Sprintf("snapshots/catalog-%d.json", exportedAt.Unix())
	}

	data, err := json.Marshal(CatalogSnapshot{
		ExportedAt: exportedAt,
		Count:      len(sweets),
		Sweets:     sweets,
	})
	if err != nil {
		return "", 0, fmt.Errorf("encode snapshot: %w", err)
	}

	if err := e.storage.EnsureBucket(ctx); err != nil {
		return "", 0, fmt.Errorf("ensure bucket %s: %w", e.storage.Bucket(), err)
	}
	if err := e.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), snapshotContentType); err != nil {
		return "", 0, fmt.Errorf("upload snapshot: %w", err)
	}

	e.logger.Info("catalog exported",
		zap.String("bucket", e.storage.Bucket()),
		zap.String("key", key),
		zap.Int("count", len(sweets)),
	)
	return key, len(sweets), nil
}
