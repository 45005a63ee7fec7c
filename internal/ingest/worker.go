// Package ingest drives a document from uploaded blob to searchable
// vector collection: extract, chunk, embed, upsert. Claiming a document
// goes through the registry's compare-and-swap, so each document is
// processed by at most one worker without an external lock manager.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/queryhub/queryhub/internal/embedding"
	"github.com/queryhub/queryhub/internal/errs"
	"github.com/queryhub/queryhub/internal/models"
	"github.com/queryhub/queryhub/internal/registry"
	"github.com/queryhub/queryhub/internal/store"
	"github.com/queryhub/queryhub/internal/storage"
	"github.com/queryhub/queryhub/internal/vectorindex"
	"github.com/queryhub/queryhub/pkg/chunker"
	"github.com/queryhub/queryhub/pkg/textextract"
)

// errCancelled marks an ingestion aborted because its document was
// deleted mid-flight. The worker tears down instead of racing the
// deletion's cascade.
var errCancelled = errors.New("ingestion cancelled")

// upsertBatchSize bounds one vector-index write; cancellation is checked
// between batches.
const upsertBatchSize = 64

// TextExtractor is the extraction collaborator. The default wraps
// pkg/textextract; tests substitute their own.
type TextExtractor interface {
	Extract(data io.ReaderAt, size int64, fileType string) (string, error)
}

type defaultExtractor struct{}

func (defaultExtractor) Extract(data io.ReaderAt, size int64, fileType string) (string, error) {
	result, err := textextract.Extract(data, size, fileType)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

type Worker struct {
	registry  *registry.Registry
	store     store.Store
	storage   storage.Storage
	extractor TextExtractor
	embedder  embedding.Embedder
	index     *vectorindex.Manager
	chunkOpts chunker.Options
}

func NewWorker(reg *registry.Registry, st store.Store, blobs storage.Storage, embedder embedding.Embedder, index *vectorindex.Manager, opts chunker.Options) *Worker {
	return &Worker{
		registry:  reg,
		store:     st,
		storage:   blobs,
		extractor: defaultExtractor{},
		embedder:  embedder,
		index:     index,
		chunkOpts: opts,
	}
}

// WithExtractor swaps the extraction collaborator.
func (w *Worker) WithExtractor(e TextExtractor) *Worker {
	w.extractor = e
	return w
}

// Ingest processes one document end to end. The document must be in
// uploading; the claim itself is the uploading->processing CAS, so two
// workers racing on the same document cannot both proceed.
func (w *Worker) Ingest(ctx context.Context, documentID uuid.UUID) error {
	doc, err := w.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status != models.DocStatusUploading {
		return fmt.Errorf("document %s is %s, not %s: %w",
			documentID, doc.Status, models.DocStatusUploading, errs.ErrPrecondition)
	}

	ok, err := w.registry.Transition(ctx, documentID, models.DocStatusUploading, models.DocStatusProcessing, "")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("document %s already claimed: %w", documentID, errs.ErrConflict)
	}

	if err := w.run(ctx, doc); err != nil {
		if errors.Is(err, errCancelled) {
			slog.Info("ingestion cancelled, document deleted mid-flight", "document_id", documentID)
			w.teardown(documentID)
			return nil
		}
		w.fail(ctx, documentID, err)
		return err
	}

	slog.Info("document ingested", "document_id", documentID)
	return nil
}

func (w *Worker) run(ctx context.Context, doc *models.Document) error {
	// A previous attempt may have left chunks or vectors behind; clear
	// them first so re-ingestion never appends duplicates.
	if err := w.store.DeleteChunks(ctx, doc.ID); err != nil {
		return fmt.Errorf("clear previous chunks: %w", err)
	}
	if err := w.index.DropCollection(ctx, doc.ID); err != nil {
		return fmt.Errorf("clear previous collection: %w", err)
	}

	reader, err := w.storage.Download(ctx, doc.StorageKey)
	if err != nil {
		return errs.Upstream("storage", fmt.Errorf("download blob: %w", err))
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return errs.Upstream("storage", fmt.Errorf("read blob: %w", err))
	}

	if err := w.checkCancelled(ctx, doc.ID); err != nil {
		return err
	}

	text, err := w.extractor.Extract(bytes.NewReader(data), int64(len(data)), fileType(doc))
	if err != nil {
		return errs.Upstream("text extractor", err)
	}

	textChunks, err := chunker.Split(text, w.chunkOpts)
	if err != nil {
		return fmt.Errorf("chunk text: %w", err)
	}
	if len(textChunks) == 0 {
		return fmt.Errorf("document produced no text")
	}

	if err := w.checkCancelled(ctx, doc.ID); err != nil {
		return err
	}

	texts := make([]string, len(textChunks))
	for i, c := range textChunks {
		texts[i] = c.Content
	}
	vectors, err := w.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	if err := w.checkCancelled(ctx, doc.ID); err != nil {
		return err
	}

	if err := w.index.EnsureCollection(ctx, doc.ID); err != nil {
		return err
	}

	chunks := make([]models.Chunk, len(textChunks))
	chunkVectors := make([]vectorindex.ChunkVector, len(textChunks))
	for i, c := range textChunks {
		id := uuid.New()
		chunks[i] = models.Chunk{
			ID:         id,
			DocumentID: doc.ID,
			Sequence:   c.Index,
			Text:       c.Content,
			CharStart:  c.Start,
			CharEnd:    c.End,
		}
		chunkVectors[i] = vectorindex.ChunkVector{
			ChunkID:  id,
			Vector:   vectors[i],
			Sequence: c.Index,
			Text:     c.Content,
		}
	}

	for start := 0; start < len(chunkVectors); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunkVectors) {
			end = len(chunkVectors)
		}
		if err := w.checkCancelled(ctx, doc.ID); err != nil {
			return err
		}
		if err := w.index.Upsert(ctx, doc.ID, chunkVectors[start:end]); err != nil {
			return err
		}
	}

	if err := w.store.InsertChunks(ctx, chunks); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}

	ok, err := w.registry.Transition(ctx, doc.ID, models.DocStatusProcessing, models.DocStatusDone, "")
	if err != nil {
		return err
	}
	if !ok {
		// The row is gone or was moved under us; either way the result
		// of this attempt must not survive.
		return errCancelled
	}
	return nil
}

// checkCancelled observes deletion of the document between steps. The
// document being gone is the only case that aborts without recording a
// failure; plain context cancellation (shutdown, task timeout) surfaces
// as an ordinary error so the attempt is rolled back and the document
// lands in failed instead of being stranded in processing.
func (w *Worker) checkCancelled(ctx context.Context, documentID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := w.store.GetDocument(ctx, documentID)
	if errors.Is(err, errs.ErrNotFound) {
		return errCancelled
	}
	return err
}

// fail rolls back this attempt, vectors first and then chunk rows, and
// records the terminal failed status with its reason.
func (w *Worker) fail(ctx context.Context, documentID uuid.UUID, cause error) {
	slog.Error("ingestion failed", "document_id", documentID, "error", cause)

	// Use a fresh context so rollback still runs when ctx is cancelled.
	cleanup := context.Background()
	if err := w.index.DropCollection(cleanup, documentID); err != nil {
		slog.Error("rollback: drop collection failed", "document_id", documentID, "error", err)
	}
	if err := w.store.DeleteChunks(cleanup, documentID); err != nil {
		slog.Error("rollback: delete chunks failed", "document_id", documentID, "error", err)
	}

	ok, err := w.registry.Transition(cleanup, documentID, models.DocStatusProcessing, models.DocStatusFailed, cause.Error())
	if err != nil || !ok {
		slog.Error("rollback: failed-status transition did not apply", "document_id", documentID, "error", err)
	}
}

// teardown clears any state a cancelled attempt wrote after the deletion
// cascade ran. Everything here is idempotent.
func (w *Worker) teardown(documentID uuid.UUID) {
	cleanup := context.Background()
	if err := w.index.DropCollection(cleanup, documentID); err != nil {
		slog.Error("teardown: drop collection failed", "document_id", documentID, "error", err)
	}
	if err := w.store.DeleteChunks(cleanup, documentID); err != nil {
		slog.Error("teardown: delete chunks failed", "document_id", documentID, "error", err)
	}
}

func fileType(doc *models.Document) string {
	if ext := filepath.Ext(doc.Filename); ext != "" {
		return ext
	}
	return doc.ContentType
}
