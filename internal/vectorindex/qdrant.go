package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// QdrantIndex talks to Qdrant over its REST API. Collections use cosine
// distance; upserts wait for commit so a search immediately after
// ingestion sees the new points.
type QdrantIndex struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewQdrantIndex(cfg QdrantConfig) *QdrantIndex {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantIndex{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (q *QdrantIndex) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}

	exists, err := q.collectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", name), body, nil)
}

func (q *QdrantIndex) collectionExists(ctx context.Context, name string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.baseURL+"/collections/"+name, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	q.setHeaders(req)

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("get collection: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("get collection %s: %s", name, resp.Status)
	default:
		return true, nil
	}
}

func (q *QdrantIndex) Upsert(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	payload := make([]map[string]any, len(points))
	for i, p := range points {
		payload[i] = map[string]any{
			"id":      p.ID.String(),
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	body := map[string]any{"points": payload}
	return q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", name), body, nil)
}

func (q *QdrantIndex) Search(ctx context.Context, name string, vector []float32, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", name), body, &resp); err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("parse point id %q: %w", r.ID, err)
		}
		hits = append(hits, SearchHit{ID: id, Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

func (q *QdrantIndex) DropCollection(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, q.baseURL+"/collections/"+name, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q.setHeaders(req)

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	defer resp.Body.Close()

	// Dropping a collection that never existed is a no-op, same as the
	// other backends.
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("drop collection %s: %s", name, resp.Status)
	}
	return nil
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (q *QdrantIndex) setHeaders(req *http.Request) {
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
}

var _ Index = (*QdrantIndex)(nil)
