package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryIndex is an in-process backend with cosine scoring, for tests and
// local development without a running engine.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]map[uuid.UUID]Point
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]map[uuid.UUID]Point)}
}

func (m *MemoryIndex) EnsureCollection(_ context.Context, name string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = make(map[uuid.UUID]Point)
	}
	return nil
}

func (m *MemoryIndex) Upsert(_ context.Context, name string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[name]
	if !ok {
		coll = make(map[uuid.UUID]Point)
		m.collections[name] = coll
	}
	for _, p := range points {
		coll[p.ID] = p
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, name string, vector []float32, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []SearchHit
	for _, p := range m.collections[name] {
		hits = append(hits, SearchHit{
			ID:      p.ID,
			Score:   cosine(vector, p.Vector),
			Payload: p.Payload,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID.String() < hits[j].ID.String()
		}
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) DropCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

// HasCollection is a test helper; production code goes through Manager.
func (m *MemoryIndex) HasCollection(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok
}

// Count reports stored points in a collection; test helper.
func (m *MemoryIndex) Count(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[name])
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ Index = (*MemoryIndex)(nil)
