package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryhub/queryhub/internal/errs"
	"github.com/queryhub/queryhub/internal/models"
	"github.com/queryhub/queryhub/internal/registry"
	"github.com/queryhub/queryhub/internal/store"
	"github.com/queryhub/queryhub/internal/vectorindex"
	"github.com/queryhub/queryhub/pkg/chunker"
)

type fakeStorage struct {
	blobs map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{blobs: map[string][]byte{}}
}

func (s *fakeStorage) Upload(_ context.Context, key string, data io.Reader, _ int64, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.blobs[key] = buf
	return nil
}

func (s *fakeStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	buf, ok := s.blobs[key]
	if !ok {
		return nil, errors.New("no such blob")
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	delete(s.blobs, key)
	return nil
}

type fakeEmbedder struct {
	failAfter int
	calls     int
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.failAfter > 0 && e.calls >= e.failAfter {
		return nil, errs.Upstream("embedder", errors.New("quota exceeded"))
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, 0}
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// deleteAfterExtract deletes the document mid-ingestion to exercise
// cancellation between pipeline steps.
type deleteAfterExtract struct {
	reg   *registry.Registry
	docID uuid.UUID
}

func (d *deleteAfterExtract) Extract(data io.ReaderAt, size int64, _ string) (string, error) {
	if err := d.reg.Delete(context.Background(), d.docID); err != nil {
		return "", err
	}
	buf := make([]byte, size)
	if _, err := data.ReadAt(buf, 0); err != nil {
		return "", err
	}
	return string(buf), nil
}

type testHarness struct {
	store    *store.MemoryStore
	index    *vectorindex.MemoryIndex
	registry *registry.Registry
	storage  *fakeStorage
	embedder *fakeEmbedder
	worker   *Worker
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	st := store.NewMemoryStore()
	idx := vectorindex.NewMemoryIndex()
	manager := vectorindex.NewManager(idx, 3)
	reg := registry.New(st, manager)
	blobs := newFakeStorage()
	embedder := &fakeEmbedder{}
	worker := NewWorker(reg, st, blobs, embedder, manager, chunker.Options{ChunkSize: 40, Overlap: 8})
	return &testHarness{store: st, index: idx, registry: reg, storage: blobs, embedder: embedder, worker: worker}
}

func (h *testHarness) uploadDocument(t *testing.T, content string) *models.Document {
	t.Helper()
	ctx := context.Background()
	key := "uploads/" + uuid.NewString() + ".txt"
	require.NoError(t, h.storage.Upload(ctx, key, strings.NewReader(content), int64(len(content)), "text/plain"))
	doc, err := h.registry.Register(ctx, "notes.txt", key, "text/plain")
	require.NoError(t, err)
	return doc
}

func TestIngestHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.uploadDocument(t, strings.Repeat("the quick brown fox jumps over the dog ", 5))

	require.NoError(t, h.worker.Ingest(ctx, doc.ID))

	got, err := h.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusDone, got.Status)
	assert.Empty(t, got.FailureReason)

	chunks, err := h.store.ListChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Sequence)
	}

	collection := vectorindex.CollectionName(doc.ID)
	assert.True(t, h.index.HasCollection(collection))
	assert.Equal(t, len(chunks), h.index.Count(collection))
}

func TestIngestRequiresUploadingStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.uploadDocument(t, "short note")

	require.NoError(t, h.worker.Ingest(ctx, doc.ID))

	err := h.worker.Ingest(ctx, doc.ID)
	assert.ErrorIs(t, err, errs.ErrPrecondition)
}

func TestIngestUnknownDocument(t *testing.T) {
	h := newHarness(t)
	err := h.worker.Ingest(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestIngestEmbedFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.uploadDocument(t, strings.Repeat("searchable text body ", 10))
	h.embedder.failAfter = 1

	err := h.worker.Ingest(ctx, doc.ID)
	require.Error(t, err)

	got, lookupErr := h.store.GetDocument(ctx, doc.ID)
	require.NoError(t, lookupErr)
	assert.Equal(t, models.DocStatusFailed, got.Status)
	assert.Contains(t, got.FailureReason, "quota exceeded")

	chunks, chunkErr := h.store.ListChunks(ctx, doc.ID)
	require.NoError(t, chunkErr)
	assert.Empty(t, chunks)
	assert.False(t, h.index.HasCollection(vectorindex.CollectionName(doc.ID)))
}

func TestIngestReingestAfterFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.uploadDocument(t, strings.Repeat("retryable content here ", 10))

	h.embedder.failAfter = 1
	require.Error(t, h.worker.Ingest(ctx, doc.ID))

	// An operator reset starts a fresh ingestion attempt.
	ok, err := h.store.TransitionDocument(ctx, doc.ID, models.DocStatusFailed, models.DocStatusUploading, "")
	require.NoError(t, err)
	require.True(t, ok)

	h.embedder.failAfter = 0
	require.NoError(t, h.worker.Ingest(ctx, doc.ID))

	got, err := h.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusDone, got.Status)

	chunks, err := h.store.ListChunks(ctx, doc.ID)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, c := range chunks {
		assert.False(t, seen[c.Sequence], "duplicate sequence %d", c.Sequence)
		seen[c.Sequence] = true
	}
}

func TestIngestCancelledByDeletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.uploadDocument(t, strings.Repeat("soon to be deleted ", 10))
	h.worker.WithExtractor(&deleteAfterExtract{reg: h.registry, docID: doc.ID})

	require.NoError(t, h.worker.Ingest(ctx, doc.ID))

	_, err := h.store.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	chunks, err := h.store.ListChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.False(t, h.index.HasCollection(vectorindex.CollectionName(doc.ID)))
}

func TestIngestEmptyDocumentFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.uploadDocument(t, "")

	require.Error(t, h.worker.Ingest(ctx, doc.ID))

	got, err := h.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, got.Status)
	assert.NotEmpty(t, got.FailureReason)
}
