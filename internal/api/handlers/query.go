package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/queryhub/queryhub/internal/answer"
	"github.com/queryhub/queryhub/internal/chat"
	"github.com/queryhub/queryhub/internal/errs"
	"github.com/queryhub/queryhub/internal/models"
)

type QueryHandler struct {
	orchestrator *answer.Orchestrator
	chat         *chat.Service
}

func NewQueryHandler(orch *answer.Orchestrator, chatSvc *chat.Service) *QueryHandler {
	return &QueryHandler{orchestrator: orch, chat: chatSvc}
}

type askRequest struct {
	Query      string     `json:"query"`
	SessionID  *uuid.UUID `json:"session_id,omitempty"`
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
}

type askResponse struct {
	SessionID uuid.UUID        `json:"session_id"`
	Answer    string           `json:"answer"`
	Contexts  []models.Context `json:"contexts"`
}

// Ask runs one question/answer turn. Without a session_id a new session
// is opened so the turn is still recorded and can be continued later.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validationf("invalid request body"))
		return
	}
	if req.Query == "" {
		writeError(w, errs.Validationf("query is required"))
		return
	}

	sessionID := uuid.Nil
	if req.SessionID != nil {
		sessionID = *req.SessionID
	} else {
		session, err := h.chat.CreateSession(r.Context(), truncateTitle(req.Query), req.DocumentID)
		if err != nil {
			writeError(w, err)
			return
		}
		sessionID = session.ID
	}

	result, err := h.orchestrator.Ask(r.Context(), sessionID, req.Query, req.DocumentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		SessionID: sessionID,
		Answer:    result.Answer.Content,
		Contexts:  result.Contexts,
	})
}

func truncateTitle(query string) string {
	const maxTitle = 80
	runes := []rune(query)
	if len(runes) <= maxTitle {
		return query
	}
	return string(runes[:maxTitle])
}
