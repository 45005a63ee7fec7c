package models

import (
	"time"

	"github.com/google/uuid"
)

// Document status forms a strict forward automaton:
// uploading -> processing -> done | failed.
const (
	DocStatusUploading  = "uploading"
	DocStatusProcessing = "processing"
	DocStatusDone       = "done"
	DocStatusFailed     = "failed"
)

type Document struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Filename      string    `json:"filename" db:"filename"`
	StorageKey    string    `json:"storage_key" db:"storage_key"`
	ContentType   string    `json:"content_type,omitempty" db:"content_type"`
	Status        string    `json:"status" db:"status"`
	FailureReason string    `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Chunk is one window of a document's extracted text. Chunks are written
// once during ingestion and never mutated afterwards.
type Chunk struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	Sequence   int       `json:"sequence" db:"sequence"`
	Text       string    `json:"text" db:"text"`
	CharStart  int       `json:"char_start" db:"char_start"`
	CharEnd    int       `json:"char_end" db:"char_end"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ValidTransition reports whether a status change is allowed by the
// automaton. Backward moves and jumps past processing are rejected.
func ValidTransition(from, to string) bool {
	switch from {
	case DocStatusUploading:
		return to == DocStatusProcessing
	case DocStatusProcessing:
		return to == DocStatusDone || to == DocStatusFailed
	default:
		return false
	}
}
