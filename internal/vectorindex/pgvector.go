package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorIndex keeps one pgvector table per collection, so per-document
// isolation holds structurally here too: a query can only ever scan the
// one table its collection name resolves to.
type PgVectorIndex struct {
	db *pgxpool.Pool
}

func NewPgVectorIndex(db *pgxpool.Pool) *PgVectorIndex {
	return &PgVectorIndex{db: db}
}

// tableName turns a collection name into a safe SQL identifier. Collection
// names come from Manager (doc-{uuid}), so only hyphens need mapping.
func tableName(collection string) string {
	var b strings.Builder
	b.WriteString("vec_")
	for _, r := range collection {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (s *PgVectorIndex) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}'
		)`, tableName(name), dimension))
	if err != nil {
		return fmt.Errorf("create collection table: %w", err)
	}
	return nil
}

func (s *PgVectorIndex) Upsert(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	table := tableName(name)
	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		_, err = tx.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (id, embedding, payload) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET embedding = $2, payload = $3`, table),
			p.ID, pgvector.NewVector(p.Vector), payload)
		if err != nil {
			return fmt.Errorf("upsert point %s: %w", p.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PgVectorIndex) Search(ctx context.Context, name string, vector []float32, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	embedding := pgvector.NewVector(vector)

	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT id, payload, 1 - (embedding <=> $1) AS score
		 FROM %s
		 ORDER BY embedding <=> $1
		 LIMIT $2`, tableName(name)),
		embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var payload []byte
		if err := rows.Scan(&h.ID, &payload, &h.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		if err := json.Unmarshal(payload, &h.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PgVectorIndex) DropCollection(ctx context.Context, name string) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableName(name)))
	if err != nil {
		return fmt.Errorf("drop collection table: %w", err)
	}
	return nil
}

var _ Index = (*PgVectorIndex)(nil)
