// Package document ties the upload lifecycle together: blob to object
// storage, registration, ingestion enqueue, deletion with blob cleanup.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/queryhub/queryhub/internal/cache"
	"github.com/queryhub/queryhub/internal/errs"
	"github.com/queryhub/queryhub/internal/models"
	"github.com/queryhub/queryhub/internal/registry"
	"github.com/queryhub/queryhub/internal/storage"
	"github.com/queryhub/queryhub/pkg/textextract"
)

// Enqueuer schedules background ingestion. Satisfied by *queue.Client.
type Enqueuer interface {
	EnqueueDocumentIngest(ctx context.Context, documentID uuid.UUID) error
}

type Service struct {
	registry *registry.Registry
	storage  storage.Storage
	queue    Enqueuer
	cache    *cache.Cache
}

// NewService wires the upload path. cache may be nil; status reads then
// always hit the store.
func NewService(reg *registry.Registry, blobs storage.Storage, qc Enqueuer, c *cache.Cache) *Service {
	return &Service{registry: reg, storage: blobs, queue: qc, cache: c}
}

type UploadRequest struct {
	Filename    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// Upload stores the blob, registers the document in uploading, and
// enqueues ingestion. The blob goes out first so a registered document
// always has a readable storage key.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*models.Document, error) {
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, errs.Validationf("filename is required")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !textextract.Supported(ext) {
		return nil, errs.Validationf("unsupported file type %q, expected one of %s",
			ext, strings.Join(textextract.SupportedTypes(), ", "))
	}

	storageKey := fmt.Sprintf("uploads/%s%s", uuid.New(), ext)
	if err := s.storage.Upload(ctx, storageKey, req.Data, req.Size, req.ContentType); err != nil {
		return nil, errs.Upstream("storage", fmt.Errorf("upload blob: %w", err))
	}

	doc, err := s.registry.Register(ctx, filename, storageKey, req.ContentType)
	if err != nil {
		// The document never existed; do not leave its blob behind.
		if delErr := s.storage.Delete(ctx, storageKey); delErr != nil {
			slog.Error("orphaned blob after failed registration", "storage_key", storageKey, "error", delErr)
		}
		return nil, err
	}

	if err := s.queue.EnqueueDocumentIngest(ctx, doc.ID); err != nil {
		// A document stuck in uploading has no re-enqueue surface; roll
		// the registration back so the client can simply retry the upload.
		if delErr := s.registry.Delete(ctx, doc.ID); delErr != nil {
			slog.Error("rollback of unqueued document failed", "document_id", doc.ID, "error", delErr)
		}
		if delErr := s.storage.Delete(ctx, storageKey); delErr != nil {
			slog.Error("orphaned blob after failed enqueue", "storage_key", storageKey, "error", delErr)
		}
		return nil, errs.Upstream("queue", fmt.Errorf("enqueue ingestion: %w", err))
	}

	slog.Info("document uploaded", "document_id", doc.ID, "filename", filename, "size", req.Size)
	return doc, nil
}

// Get reads one document, through the status cache when one is wired.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	if s.cache != nil {
		if doc, err := s.cache.GetDocumentStatus(ctx, id); err == nil {
			return doc, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("status cache read failed", "document_id", id, "error", err)
		}
	}

	doc, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetDocumentStatus(ctx, doc); err != nil {
			slog.Warn("status cache write failed", "document_id", id, "error", err)
		}
	}
	return doc, nil
}

func (s *Service) List(ctx context.Context) ([]models.Document, error) {
	return s.registry.List(ctx)
}

// Delete cascades through the registry, then removes the blob and the
// cached status. Blob cleanup failure is logged, not surfaced: the
// document is already gone and the key is unreachable.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.registry.Delete(ctx, id); err != nil {
		return err
	}

	if doc.StorageKey != "" {
		if err := s.storage.Delete(ctx, doc.StorageKey); err != nil {
			slog.Error("blob cleanup failed after delete", "document_id", id, "storage_key", doc.StorageKey, "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.InvalidateDocument(ctx, id); err != nil {
			slog.Warn("status cache invalidation failed", "document_id", id, "error", err)
		}
	}
	return nil
}
