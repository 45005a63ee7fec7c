// Package storage holds uploaded document blobs until the ingestion
// worker pulls them for text extraction.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/queryhub/queryhub/internal/config"
)

type Storage interface {
	Upload(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// New picks the backend from config. "supabase" mirrors the original
// deployment; "minio" covers S3-compatible object stores.
func New(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case "supabase":
		return NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Bucket), nil
	case "minio":
		return NewMinioStorage(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.Bucket, cfg.MinioUseSSL)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
