package vectorindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/queryhub/queryhub/internal/errs"
)

// Manager maps exactly one collection to exactly one document. Every
// collection is named doc-{document_id}; no caller may bypass this
// mapping, which is what keeps documents' search spaces isolated.
type Manager struct {
	index     Index
	dimension int
}

func NewManager(index Index, dimension int) *Manager {
	return &Manager{index: index, dimension: dimension}
}

// CollectionName is the deterministic, collision-free mapping from a
// document to its collection.
func CollectionName(documentID uuid.UUID) string {
	return "doc-" + documentID.String()
}

// ChunkVector pairs a chunk's embedding with the payload stored beside it.
type ChunkVector struct {
	ChunkID  uuid.UUID
	Vector   []float32
	Sequence int
	Text     string
}

func (m *Manager) EnsureCollection(ctx context.Context, documentID uuid.UUID) error {
	if err := m.index.EnsureCollection(ctx, CollectionName(documentID), m.dimension); err != nil {
		return errs.Upstream("vector index", fmt.Errorf("ensure collection: %w", err))
	}
	return nil
}

func (m *Manager) Upsert(ctx context.Context, documentID uuid.UUID, vectors []ChunkVector) error {
	if len(vectors) == 0 {
		return nil
	}
	points := make([]Point, len(vectors))
	for i, v := range vectors {
		points[i] = Point{
			ID:     v.ChunkID,
			Vector: v.Vector,
			Payload: map[string]any{
				"document_id": documentID.String(),
				"sequence":    v.Sequence,
				"text":        v.Text,
			},
		}
	}
	if err := m.index.Upsert(ctx, CollectionName(documentID), points); err != nil {
		return errs.Upstream("vector index", fmt.Errorf("upsert: %w", err))
	}
	return nil
}

func (m *Manager) Query(ctx context.Context, documentID uuid.UUID, vector []float32, k int) ([]SearchHit, error) {
	hits, err := m.index.Search(ctx, CollectionName(documentID), vector, k)
	if err != nil {
		return nil, errs.Upstream("vector index", fmt.Errorf("search: %w", err))
	}
	return hits, nil
}

func (m *Manager) DropCollection(ctx context.Context, documentID uuid.UUID) error {
	if err := m.index.DropCollection(ctx, CollectionName(documentID)); err != nil {
		return errs.Upstream("vector index", fmt.Errorf("drop collection: %w", err))
	}
	return nil
}
