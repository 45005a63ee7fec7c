package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/queryhub/queryhub/internal/errs"
	"github.com/queryhub/queryhub/internal/models"
)

// MemoryStore keeps everything in process with the same semantics as the
// Postgres store, including the cascades. One mutex is enough: it makes
// every append a single critical section, which satisfies the per-session
// ordering guarantee trivially.
type MemoryStore struct {
	mu        sync.Mutex
	documents map[uuid.UUID]models.Document
	chunks    map[uuid.UUID][]models.Chunk // by document
	sessions  map[uuid.UUID]models.ChatSession
	messages  map[uuid.UUID][]models.Message // by session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[uuid.UUID]models.Document),
		chunks:    make(map[uuid.UUID][]models.Chunk),
		sessions:  make(map[uuid.UUID]models.ChatSession),
		messages:  make(map[uuid.UUID][]models.Message),
	}
}

func (s *MemoryStore) CreateDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	s.documents[doc.ID] = *doc
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
	}
	return &doc, nil
}

func (s *MemoryStore) ListDocuments(_ context.Context) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listDocumentsLocked(""), nil
}

func (s *MemoryStore) ListDocumentsByStatus(_ context.Context, status string) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listDocumentsLocked(status), nil
}

func (s *MemoryStore) listDocumentsLocked(status string) []models.Document {
	var docs []models.Document
	for _, d := range s.documents {
		if status == "" || d.Status == status {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID.String() < docs[j].ID.String()
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs
}

func (s *MemoryStore) TransitionDocument(_ context.Context, id uuid.UUID, from, to, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok || doc.Status != from {
		return false, nil
	}
	doc.Status = to
	doc.FailureReason = reason
	s.documents[id] = doc
	return true, nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
	}
	delete(s.documents, id)
	delete(s.chunks, id)
	for sid, sess := range s.sessions {
		if sess.DocumentID != nil && *sess.DocumentID == id {
			delete(s.sessions, sid)
			delete(s.messages, sid)
		}
	}
	return nil
}

func (s *MemoryStore) InsertChunks(_ context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range chunks {
		c := &chunks[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		s.chunks[c.DocumentID] = append(s.chunks[c.DocumentID], *c)
	}
	return nil
}

func (s *MemoryStore) DeleteChunks(_ context.Context, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, documentID)
	return nil
}

func (s *MemoryStore) ListChunks(_ context.Context, documentID uuid.UUID) ([]models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := make([]models.Chunk, len(s.chunks[documentID]))
	copy(chunks, s.chunks[documentID])
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Sequence < chunks[j].Sequence })
	return chunks, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id uuid.UUID) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, errs.ErrNotFound)
	}
	return &sess, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, documentID *uuid.UUID) ([]models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []models.ChatSession
	for _, sess := range s.sessions {
		if documentID != nil && (sess.DocumentID == nil || *sess.DocumentID != *documentID) {
			continue
		}
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].ID.String() < sessions[j].ID.String()
		}
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, errs.ErrNotFound)
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, sessionID uuid.UUID, role, content string, contexts []models.Context) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, errs.ErrNotFound)
	}
	if contexts == nil {
		contexts = []models.Context{}
	}

	now := time.Now().UTC()
	msg := models.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Seq:       len(s.messages[sessionID]),
		Role:      role,
		Content:   content,
		Contexts:  contexts,
		CreatedAt: now,
	}
	s.messages[sessionID] = append(s.messages[sessionID], msg)

	if now.After(sess.UpdatedAt) {
		sess.UpdatedAt = now
		s.sessions[sessionID] = sess
	}
	return &msg, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]models.Message, len(s.messages[sessionID]))
	copy(messages, s.messages[sessionID])
	return messages, nil
}

var _ Store = (*MemoryStore)(nil)
