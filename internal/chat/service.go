// Package chat exposes session and message operations, validating at the
// boundary and delegating persistence to the store.
package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/queryhub/queryhub/internal/errs"
	"github.com/queryhub/queryhub/internal/models"
	"github.com/queryhub/queryhub/internal/store"
)

const defaultSessionTitle = "New chat"

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// CreateSession opens a session, optionally linked to a document. A blank
// title gets a default. Linking to an unknown document is ErrNotFound.
func (s *Service) CreateSession(ctx context.Context, title string, documentID *uuid.UUID) (*models.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultSessionTitle
	}
	if documentID != nil {
		if _, err := s.store.GetDocument(ctx, *documentID); err != nil {
			return nil, err
		}
	}

	session := &models.ChatSession{
		ID:         uuid.New(),
		Title:      title,
		DocumentID: documentID,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	slog.Info("chat session created", "session_id", session.ID, "document_id", documentID)
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	return s.store.GetSession(ctx, id)
}

// ListSessions returns all sessions, or only those linked to documentID
// when it is non-nil.
func (s *Service) ListSessions(ctx context.Context, documentID *uuid.UUID) ([]models.ChatSession, error) {
	return s.store.ListSessions(ctx, documentID)
}

func (s *Service) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, sessionID)
}

// AppendMessage validates the role and content, then appends. Sequence
// assignment and the updated_at bump happen inside the store's
// transaction, so concurrent appends serialize there.
func (s *Service) AppendMessage(ctx context.Context, sessionID uuid.UUID, role, content string, contexts []models.Context) (*models.Message, error) {
	if !models.ValidRole(role) {
		return nil, errs.Validationf("role %q is not one of %q, %q", role, models.RoleUser, models.RoleAssistant)
	}
	if strings.TrimSpace(content) == "" {
		return nil, errs.Validationf("message content is required")
	}
	if contexts == nil {
		contexts = []models.Context{}
	}
	return s.store.AppendMessage(ctx, sessionID, role, content, contexts)
}

// DeleteSession removes the session and its messages.
func (s *Service) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	slog.Info("chat session deleted", "session_id", id)
	return nil
}
