package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/queryhub/queryhub/internal/chat"
	"github.com/queryhub/queryhub/internal/errs"
	"github.com/queryhub/queryhub/internal/models"
)

type ChatHandler struct {
	svc *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type createSessionRequest struct {
	Title      string     `json:"title"`
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
}

func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validationf("invalid request body"))
		return
	}

	session, err := h.svc.CreateSession(r.Context(), req.Title, req.DocumentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// ListSessions accepts an optional document_id query parameter to filter
// sessions linked to one document.
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	var documentID *uuid.UUID
	if raw := r.URL.Query().Get("document_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, errs.Validationf("invalid document_id filter"))
			return
		}
		documentID = &id
	}

	sessions, err := h.svc.ListSessions(r.Context(), documentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions, "count": len(sessions)})
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errs.Validationf("invalid session id"))
		return
	}

	messages, err := h.svc.ListMessages(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages, "count": len(messages)})
}

type appendMessageRequest struct {
	Role     string           `json:"role"`
	Content  string           `json:"content"`
	Contexts []models.Context `json:"contexts,omitempty"`
}

func (h *ChatHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errs.Validationf("invalid session id"))
		return
	}

	var req appendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validationf("invalid request body"))
		return
	}

	msg, err := h.svc.AppendMessage(r.Context(), id, req.Role, req.Content, req.Contexts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errs.Validationf("invalid session id"))
		return
	}

	if err := h.svc.DeleteSession(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
