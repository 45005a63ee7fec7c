// Package vectorindex wraps the external vector-similarity engine behind a
// backend-agnostic Index, and scopes all access per document through Manager.
package vectorindex

import (
	"context"

	"github.com/google/uuid"
)

// Point is one vector record. Payload travels with the vector and comes
// back verbatim on search hits.
type Point struct {
	ID      uuid.UUID
	Vector  []float32
	Payload map[string]any
}

// SearchHit is a ranked match, score descending, higher is closer.
type SearchHit struct {
	ID      uuid.UUID
	Score   float64
	Payload map[string]any
}

// Index is the raw collection-level engine. Callers other than Manager
// must not touch it; collection naming is Manager's job.
type Index interface {
	// EnsureCollection creates the collection if missing. Idempotent.
	EnsureCollection(ctx context.Context, name string, dimension int) error
	Upsert(ctx context.Context, name string, points []Point) error
	Search(ctx context.Context, name string, vector []float32, limit int) ([]SearchHit, error)
	DropCollection(ctx context.Context, name string) error
}
