// Package registry owns document metadata and the processing status
// automaton. Status is mutated only through guarded compare-and-swap
// transitions, never by direct writes.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/queryhub/queryhub/internal/errs"
	"github.com/queryhub/queryhub/internal/models"
	"github.com/queryhub/queryhub/internal/store"
	"github.com/queryhub/queryhub/internal/vectorindex"
)

type Registry struct {
	store store.Store
	index *vectorindex.Manager
}

func New(st store.Store, index *vectorindex.Manager) *Registry {
	return &Registry{store: st, index: index}
}

// Register creates a document in the uploading state.
func (r *Registry) Register(ctx context.Context, filename, storageKey, contentType string) (*models.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, errs.Validationf("filename is required")
	}
	if strings.TrimSpace(storageKey) == "" {
		return nil, errs.Validationf("storage key is required")
	}

	doc := &models.Document{
		ID:          uuid.New(),
		Filename:    filename,
		StorageKey:  storageKey,
		ContentType: contentType,
		Status:      models.DocStatusUploading,
	}
	if err := r.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("register document: %w", err)
	}
	return doc, nil
}

func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return r.store.GetDocument(ctx, id)
}

func (r *Registry) List(ctx context.Context) ([]models.Document, error) {
	return r.store.ListDocuments(ctx)
}

func (r *Registry) ListByStatus(ctx context.Context, status string) ([]models.Document, error) {
	return r.store.ListDocumentsByStatus(ctx, status)
}

// Transition moves a document from one status to another with
// compare-and-swap semantics. It returns false, without error, when the
// document's current status is not `from`; that is how a worker loses a
// race instead of double-processing. Transitions outside the automaton
// are rejected outright.
func (r *Registry) Transition(ctx context.Context, id uuid.UUID, from, to, reason string) (bool, error) {
	if !models.ValidTransition(from, to) {
		return false, errs.Validationf("illegal transition %s -> %s", from, to)
	}
	ok, err := r.store.TransitionDocument(ctx, id, from, to, reason)
	if err != nil {
		return false, err
	}
	if ok {
		slog.Info("document transitioned", "document_id", id, "from", from, "to", to)
	}
	return ok, nil
}

// Delete removes the document and everything that exists only in relation
// to it: its vector collection, its chunks, its chat sessions, and their
// messages. The collection is dropped before the registry row so a failed
// drop aborts the delete and the caller retries; vector data is never
// orphaned.
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.store.GetDocument(ctx, id); err != nil {
		return err
	}

	if err := r.index.DropCollection(ctx, id); err != nil {
		return fmt.Errorf("drop collection for %s: %w", id, err)
	}

	if err := r.store.DeleteDocument(ctx, id); err != nil {
		return err
	}

	slog.Info("document deleted", "document_id", id)
	return nil
}
