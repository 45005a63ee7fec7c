package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatSession scopes a conversation. DocumentID is nil for undirected
// chats; when set, deleting the document deletes the session.
type ChatSession struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Title      string     `json:"title" db:"title"`
	DocumentID *uuid.UUID `json:"document_id,omitempty" db:"document_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Context is one retrieved chunk attached to an assistant message.
type Context struct {
	Score   float64        `json:"score"`
	Text    string         `json:"text"`
	Payload map[string]any `json:"payload"`
}

// Message is immutable once created. Seq is assigned by the store inside
// the append transaction; ordering never depends on wall-clock alone.
type Message struct {
	ID        uuid.UUID `json:"id" db:"id"`
	SessionID uuid.UUID `json:"session_id" db:"session_id"`
	Seq       int       `json:"seq" db:"seq"`
	Role      string    `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	Contexts  []Context `json:"contexts" db:"contexts"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
