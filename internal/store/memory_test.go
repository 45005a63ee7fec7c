package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryhub/queryhub/internal/errs"
	"github.com/queryhub/queryhub/internal/models"
)

func newDoc(t *testing.T, s Store, status string) *models.Document {
	t.Helper()
	doc := &models.Document{Filename: "report.pdf", StorageKey: "uploads/report.pdf", Status: status}
	require.NoError(t, s.CreateDocument(context.Background(), doc))
	return doc
}

func TestTransitionDocumentCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := newDoc(t, s, models.DocStatusUploading)

	ok, err := s.TransitionDocument(ctx, doc.ID, models.DocStatusUploading, models.DocStatusProcessing, "")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second CAS from the same expected state loses.
	ok, err = s.TransitionDocument(ctx, doc.ID, models.DocStatusUploading, models.DocStatusProcessing, "")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusProcessing, got.Status)
}

func TestDeleteDocumentCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := newDoc(t, s, models.DocStatusDone)

	require.NoError(t, s.InsertChunks(ctx, []models.Chunk{
		{DocumentID: doc.ID, Sequence: 0, Text: "a", CharStart: 0, CharEnd: 1},
		{DocumentID: doc.ID, Sequence: 1, Text: "b", CharStart: 1, CharEnd: 2},
	}))

	sess := &models.ChatSession{Title: "about the report", DocumentID: &doc.ID}
	require.NoError(t, s.CreateSession(ctx, sess))
	_, err := s.AppendMessage(ctx, sess.ID, models.RoleUser, "hi", nil)
	require.NoError(t, err)

	other := &models.ChatSession{Title: "unscoped"}
	require.NoError(t, s.CreateSession(ctx, other))

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	_, err = s.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	chunks, err := s.ListChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	sessions, err := s.ListSessions(ctx, &doc.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	msgs, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// The unlinked session survives.
	_, err = s.GetSession(ctx, other.ID)
	assert.NoError(t, err)
}

func TestAppendMessageOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	sess := &models.ChatSession{Title: "chat"}
	require.NoError(t, s.CreateSession(ctx, sess))

	m1, err := s.AppendMessage(ctx, sess.ID, models.RoleUser, "first", nil)
	require.NoError(t, err)
	m2, err := s.AppendMessage(ctx, sess.ID, models.RoleAssistant, "second", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, m1.Seq)
	assert.Equal(t, 1, m2.Seq)

	msgs, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}

func TestAppendMessageConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	sess := &models.ChatSession{Title: "busy"}
	require.NoError(t, s.CreateSession(ctx, sess))
	noise := &models.ChatSession{Title: "noise"}
	require.NoError(t, s.CreateSession(ctx, noise))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendMessage(ctx, sess.ID, models.RoleUser, fmt.Sprintf("msg-%d", i), nil)
			assert.NoError(t, err)
			_, err = s.AppendMessage(ctx, noise.ID, models.RoleUser, "noise", nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i, m := range msgs {
		assert.Equal(t, i, m.Seq, "sequence numbers must be dense and ordered")
	}
}

func TestAppendMessageUnknownSession(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.AppendMessage(ctx, uuid.New(), models.RoleUser, "hi", nil)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAppendMessageBumpsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	sess := &models.ChatSession{Title: "chat"}
	require.NoError(t, s.CreateSession(ctx, sess))
	before, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)

	msg, err := s.AppendMessage(ctx, sess.ID, models.RoleUser, "hi", nil)
	require.NoError(t, err)

	after, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
	assert.False(t, after.UpdatedAt.Before(msg.CreatedAt))
}

func TestListSessionsFiltered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	docA := newDoc(t, s, models.DocStatusDone)
	docB := newDoc(t, s, models.DocStatusDone)

	require.NoError(t, s.CreateSession(ctx, &models.ChatSession{Title: "a1", DocumentID: &docA.ID}))
	require.NoError(t, s.CreateSession(ctx, &models.ChatSession{Title: "a2", DocumentID: &docA.ID}))
	require.NoError(t, s.CreateSession(ctx, &models.ChatSession{Title: "b", DocumentID: &docB.ID}))
	require.NoError(t, s.CreateSession(ctx, &models.ChatSession{Title: "free"}))

	all, err := s.ListSessions(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	onlyA, err := s.ListSessions(ctx, &docA.ID)
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)
}
