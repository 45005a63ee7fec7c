package vectorindex

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queryhub/queryhub/internal/config"
)

// New selects the configured backend. db is only required for pgvector.
func New(cfg config.VectorConfig, db *pgxpool.Pool) (Index, error) {
	switch cfg.Backend {
	case "qdrant":
		return NewQdrantIndex(QdrantConfig{
			URL:     cfg.QdrantURL,
			APIKey:  cfg.QdrantAPIKey,
			Timeout: cfg.Timeout,
		}), nil
	case "pgvector":
		if db == nil {
			return nil, fmt.Errorf("pgvector backend needs a database pool")
		}
		return NewPgVectorIndex(db), nil
	case "memory":
		return NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}
