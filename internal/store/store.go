// Package store owns relational persistence for documents, chunks, chat
// sessions, and messages. The Postgres implementation backs production;
// the memory implementation backs tests and local development.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/queryhub/queryhub/internal/models"
)

type Store interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	ListDocumentsByStatus(ctx context.Context, status string) ([]models.Document, error)
	// TransitionDocument performs a compare-and-swap on status. It returns
	// false when the document's current status differs from `from`, which
	// is how racing workers lose without double-processing.
	TransitionDocument(ctx context.Context, id uuid.UUID, from, to, reason string) (bool, error)
	// DeleteDocument removes the document and cascades to its chunks, its
	// linked chat sessions, and their messages.
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	DeleteChunks(ctx context.Context, documentID uuid.UUID) error
	ListChunks(ctx context.Context, documentID uuid.UUID) ([]models.Chunk, error)

	CreateSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)
	ListSessions(ctx context.Context, documentID *uuid.UUID) ([]models.ChatSession, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error

	// AppendMessage assigns the next per-session sequence number and bumps
	// the session's updated_at in the same transaction, so a reader never
	// observes a session lagging its newest message.
	AppendMessage(ctx context.Context, sessionID uuid.UUID, role, content string, contexts []models.Context) (*models.Message, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error)
}
