package vectorindex

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionName(t *testing.T) {
	id := uuid.MustParse("a3bb189e-8bf9-3888-9912-ace4e6543002")
	assert.Equal(t, "doc-a3bb189e-8bf9-3888-9912-ace4e6543002", CollectionName(id))
}

func TestManagerIsolation(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	mgr := NewManager(idx, 3)

	docA := uuid.New()
	docB := uuid.New()

	require.NoError(t, mgr.EnsureCollection(ctx, docA))
	require.NoError(t, mgr.EnsureCollection(ctx, docB))

	chunkA := uuid.New()
	chunkB := uuid.New()
	require.NoError(t, mgr.Upsert(ctx, docA, []ChunkVector{
		{ChunkID: chunkA, Vector: []float32{1, 0, 0}, Sequence: 0, Text: "alpha"},
	}))
	require.NoError(t, mgr.Upsert(ctx, docB, []ChunkVector{
		{ChunkID: chunkB, Vector: []float32{1, 0, 0}, Sequence: 0, Text: "beta"},
	}))

	// Identical vectors, but a query scoped to A never sees B's chunk.
	hits, err := mgr.Query(ctx, docA, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, chunkA, hits[0].ID)
	assert.Equal(t, docA.String(), hits[0].Payload["document_id"])
	assert.Equal(t, "alpha", hits[0].Payload["text"])
}

func TestManagerDropCollection(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	mgr := NewManager(idx, 3)

	doc := uuid.New()
	require.NoError(t, mgr.EnsureCollection(ctx, doc))
	require.NoError(t, mgr.Upsert(ctx, doc, []ChunkVector{
		{ChunkID: uuid.New(), Vector: []float32{0, 1, 0}, Text: "x"},
	}))
	require.True(t, idx.HasCollection(CollectionName(doc)))

	require.NoError(t, mgr.DropCollection(ctx, doc))
	assert.False(t, idx.HasCollection(CollectionName(doc)))

	// Idempotent.
	require.NoError(t, mgr.DropCollection(ctx, doc))
}

func TestMemoryIndexRanking(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.EnsureCollection(ctx, "c", 2))
	require.NoError(t, idx.Upsert(ctx, "c", []Point{
		{ID: uuid.New(), Vector: []float32{1, 0}, Payload: map[string]any{"text": "close"}},
		{ID: uuid.New(), Vector: []float32{0, 1}, Payload: map[string]any{"text": "far"}},
	}))

	hits, err := idx.Search(ctx, "c", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "close", hits[0].Payload["text"])
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestPgVectorTableName(t *testing.T) {
	assert.Equal(t, "vec_doc_a3bb189e_8bf9_3888_9912_ace4e6543002",
		tableName("doc-a3bb189e-8bf9-3888-9912-ace4e6543002"))
}
