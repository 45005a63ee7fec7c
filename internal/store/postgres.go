package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queryhub/queryhub/internal/errs"
	"github.com/queryhub/queryhub/internal/models"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const documentColumns = "id, filename, storage_key, content_type, status, failure_reason, created_at"

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO documents (id, filename, storage_key, content_type, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		doc.ID, doc.Filename, doc.StorageKey, doc.ContentType, doc.Status,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := s.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.StorageKey, &doc.ContentType, &doc.Status, &doc.FailureReason, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *PostgresStore) ListDocumentsByStatus(ctx context.Context, status string) ([]models.Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE status = $1 ORDER BY created_at DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("list documents by status: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows pgx.Rows) ([]models.Document, error) {
	var docs []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.StorageKey, &d.ContentType, &d.Status, &d.FailureReason, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) TransitionDocument(ctx context.Context, id uuid.UUID, from, to, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET status = $3, failure_reason = $4 WHERE id = $1 AND status = $2`,
		id, from, to, reason,
	)
	if err != nil {
		return false, fmt.Errorf("transition document: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	// Chunks, sessions, and messages go with it via ON DELETE CASCADE.
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range chunks {
		c := &chunks[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (id, document_id, sequence, text, char_start, char_end)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.DocumentID, c.Sequence, c.Text, c.CharStart, c.CharEnd,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Sequence, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteChunks(ctx context.Context, documentID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChunks(ctx context.Context, documentID uuid.UUID) ([]models.Chunk, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, document_id, sequence, text, char_start, char_end, created_at
		 FROM chunks WHERE document_id = $1 ORDER BY sequence`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Sequence, &c.Text, &c.CharStart, &c.CharEnd, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *PostgresStore) CreateSession(ctx context.Context, session *models.ChatSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO chat_sessions (id, title, document_id)
		 VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		session.ID, session.Title, session.DocumentID,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	var sess models.ChatSession
	err := s.db.QueryRow(ctx,
		`SELECT id, title, document_id, created_at, updated_at FROM chat_sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Title, &sess.DocumentID, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, documentID *uuid.UUID) ([]models.ChatSession, error) {
	query := `SELECT id, title, document_id, created_at, updated_at FROM chat_sessions`
	args := []any{}
	if documentID != nil {
		query += ` WHERE document_id = $1`
		args = append(args, *documentID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ChatSession
	for rows.Next() {
		var sess models.ChatSession
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.DocumentID, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, errs.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID uuid.UUID, role, content string, contexts []models.Context) (*models.Message, error) {
	if contexts == nil {
		contexts = []models.Context{}
	}
	contextsJSON, err := json.Marshal(contexts)
	if err != nil {
		return nil, fmt.Errorf("marshal contexts: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row lock serializes concurrent appends to the same session; appends
	// to other sessions proceed in parallel.
	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM chat_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, errs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}

	msg := &models.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Contexts:  contexts,
	}

	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM messages WHERE session_id = $1`, sessionID,
	).Scan(&msg.Seq)
	if err != nil {
		return nil, fmt.Errorf("next seq: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, session_id, seq, role, content, contexts)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		msg.ID, msg.SessionID, msg.Seq, msg.Role, msg.Content, contextsJSON,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	// GREATEST keeps updated_at monotonic even under clock skew.
	_, err = tx.Exec(ctx,
		`UPDATE chat_sessions SET updated_at = GREATEST(updated_at, $2) WHERE id = $1`,
		sessionID, msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("bump session updated_at: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, seq, role, content, contexts, created_at
		 FROM messages WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var contextsJSON []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Seq, &m.Role, &m.Content, &contextsJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal(contextsJSON, &m.Contexts); err != nil {
			return nil, fmt.Errorf("unmarshal contexts: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
