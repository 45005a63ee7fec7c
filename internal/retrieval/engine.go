// Package retrieval turns a question into ranked chunks. Scoping is
// structural: a scoped search touches exactly one document's collection,
// an unscoped search fans out over every ready document and merges.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/queryhub/queryhub/internal/embedding"
	"github.com/queryhub/queryhub/internal/errs"
	"github.com/queryhub/queryhub/internal/models"
	"github.com/queryhub/queryhub/internal/store"
	"github.com/queryhub/queryhub/internal/vectorindex"
)

// Result is one retrieved chunk with its similarity score.
type Result struct {
	ChunkID    uuid.UUID      `json:"chunk_id"`
	DocumentID uuid.UUID      `json:"document_id"`
	Score      float64        `json:"score"`
	Text       string         `json:"text"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type Engine struct {
	store    store.Store
	embedder embedding.Embedder
	index    *vectorindex.Manager
	topK     int
}

func NewEngine(st store.Store, embedder embedding.Embedder, index *vectorindex.Manager, topK int) *Engine {
	if topK <= 0 {
		topK = 4
	}
	return &Engine{store: st, embedder: embedder, index: index, topK: topK}
}

// Retrieve embeds queryText and searches. With a documentID the search is
// confined to that document's collection; without one it spans every
// document whose ingestion finished, merged by score descending with
// chunk id as the deterministic tie-break. k <= 0 selects the configured
// default. No ready documents yields an empty list, not an error.
func (e *Engine) Retrieve(ctx context.Context, queryText string, documentID *uuid.UUID, k int) ([]Result, error) {
	if queryText == "" {
		return nil, errs.Validationf("query text is required")
	}
	if k <= 0 {
		k = e.topK
	}

	var targets []uuid.UUID
	if documentID != nil {
		doc, err := e.store.GetDocument(ctx, *documentID)
		if err != nil {
			return nil, err
		}
		if doc.Status != models.DocStatusDone {
			return nil, fmt.Errorf("document %s is %s, not ready for search: %w",
				doc.ID, doc.Status, errs.ErrPrecondition)
		}
		targets = []uuid.UUID{doc.ID}
	} else {
		docs, err := e.store.ListDocumentsByStatus(ctx, models.DocStatusDone)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			targets = append(targets, doc.ID)
		}
	}
	if len(targets) == 0 {
		return []Result{}, nil
	}

	vector, err := e.embedder.EmbedSingle(ctx, queryText)
	if err != nil {
		return nil, err
	}

	var merged []Result
	for _, id := range targets {
		hits, err := e.index.Query(ctx, id, vector, k)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			merged = append(merged, Result{
				ChunkID:    hit.ID,
				DocumentID: id,
				Score:      hit.Score,
				Text:       hitText(hit),
				Payload:    hit.Payload,
			})
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ChunkID.String() < merged[j].ChunkID.String()
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

func hitText(hit vectorindex.SearchHit) string {
	if text, ok := hit.Payload["text"].(string); ok {
		return text
	}
	return ""
}
