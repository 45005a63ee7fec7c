package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryhub/queryhub/internal/models"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(client), mr
}

func TestDocumentStatusRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	doc := &models.Document{ID: uuid.New(), Filename: "a.pdf", StorageKey: "k", Status: models.DocStatusProcessing}
	require.NoError(t, c.SetDocumentStatus(ctx, doc))

	got, err := c.GetDocumentStatus(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, models.DocStatusProcessing, got.Status)
}

func TestDocumentStatusMiss(t *testing.T) {
	c, _ := newTestCache(t)
	_, err := c.GetDocumentStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrMiss)
}

func TestInvalidateDocument(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	doc := &models.Document{ID: uuid.New(), Filename: "a.pdf", StorageKey: "k", Status: models.DocStatusDone}
	require.NoError(t, c.SetDocumentStatus(ctx, doc))
	require.NoError(t, c.InvalidateDocument(ctx, doc.ID))

	_, err := c.GetDocumentStatus(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestDocumentStatusExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	doc := &models.Document{ID: uuid.New(), Filename: "a.pdf", StorageKey: "k", Status: models.DocStatusDone}
	require.NoError(t, c.SetDocumentStatus(ctx, doc))

	mr.FastForward(statusTTL * 2)

	_, err := c.GetDocumentStatus(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrMiss)
}
