// Package cache keeps a short-lived Redis copy of document status so
// status polling during ingestion does not hammer Postgres. The cache is
// advisory; misses and Redis outages fall through to the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/queryhub/queryhub/internal/models"
)

// ErrMiss is returned when the key is absent.
var ErrMiss = errors.New("cache miss")

const statusTTL = 30 * time.Second

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func statusKey(documentID uuid.UUID) string {
	return "docstatus:" + documentID.String()
}

// GetDocumentStatus returns the cached document, ErrMiss when absent.
func (c *Cache) GetDocumentStatus(ctx context.Context, documentID uuid.UUID) (*models.Document, error) {
	val, err := c.client.Get(ctx, statusKey(documentID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", statusKey(documentID), err)
	}
	var doc models.Document
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		return nil, fmt.Errorf("decode cached document: %w", err)
	}
	return &doc, nil
}

// SetDocumentStatus stores the document under a short TTL. Terminal
// statuses are still capped by the TTL so a deleted document's entry
// ages out on its own.
func (c *Cache) SetDocumentStatus(ctx context.Context, doc *models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return c.client.Set(ctx, statusKey(doc.ID), data, statusTTL).Err()
}

// InvalidateDocument drops the cached entry on document deletion. Status
// transitions happen in the worker process, which holds no cache handle,
// so their staleness is bounded by the TTL instead.
func (c *Cache) InvalidateDocument(ctx context.Context, documentID uuid.UUID) error {
	return c.client.Del(ctx, statusKey(documentID)).Err()
}
