// Package answer orchestrates one question/answer turn: persist the
// question, retrieve scoped context, generate, persist the answer. The
// user's message is written before anything that can fail downstream, so
// no input is lost to a generator outage.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/queryhub/queryhub/internal/chat"
	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/errs"
	"github.com/queryhub/queryhub/internal/llm"
	"github.com/queryhub/queryhub/internal/models"
	"github.com/queryhub/queryhub/internal/retrieval"
)

const systemPrompt = "You are an assistant that answers using supplied context. Cite chunk provenance if relevant."

// promptCharBudget bounds how much retrieved text goes into one prompt.
const promptCharBudget = 12000

// Result is a completed turn.
type Result struct {
	Answer   *models.Message  `json:"answer"`
	Contexts []models.Context `json:"contexts"`
}

type Orchestrator struct {
	chat          *chat.Service
	retriever     *retrieval.Engine
	gateway       llm.Gateway
	model         string
	maxTokens     int
	temperature   float64
	timeout       time.Duration
	topK          int
	allowUnscoped bool
}

func NewOrchestrator(chatSvc *chat.Service, retriever *retrieval.Engine, gateway llm.Gateway, llmCfg config.LLMConfig, retrievalCfg config.RetrievalConfig) *Orchestrator {
	return &Orchestrator{
		chat:          chatSvc,
		retriever:     retriever,
		gateway:       gateway,
		model:         llmCfg.Model,
		maxTokens:     llmCfg.MaxTokens,
		temperature:   llmCfg.Temperature,
		timeout:       llmCfg.Timeout,
		topK:          retrievalCfg.TopK,
		allowUnscoped: retrievalCfg.AllowUnscoped,
	}
}

// Ask runs one turn in the session. Scope resolution order: the explicit
// documentID argument, then the session's linked document, then unscoped
// search when policy allows it. With neither a scope nor permission for
// unscoped search, the call fails with ErrAmbiguousScope; the already
// persisted user message stays, like any other downstream failure.
func (o *Orchestrator) Ask(ctx context.Context, sessionID uuid.UUID, queryText string, documentID *uuid.UUID) (*Result, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, errs.Validationf("query text is required")
	}

	session, err := o.chat.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if _, err := o.chat.AppendMessage(ctx, sessionID, models.RoleUser, queryText, nil); err != nil {
		return nil, err
	}

	scope := documentID
	if scope == nil {
		scope = session.DocumentID
	}
	if scope == nil && !o.allowUnscoped {
		return nil, fmt.Errorf("no document scope given and the session has no linked document: %w", errs.ErrAmbiguousScope)
	}

	results, err := o.retriever.Retrieve(ctx, queryText, scope, o.topK)
	if err != nil {
		return nil, err
	}

	contexts := make([]models.Context, len(results))
	for i, r := range results {
		contexts[i] = models.Context{Score: r.Score, Text: r.Text, Payload: r.Payload}
	}

	answer, err := o.generate(ctx, queryText, results)
	if err != nil {
		slog.Error("generation failed, user message kept", "session_id", sessionID, "error", err)
		return nil, err
	}

	msg, err := o.chat.AppendMessage(ctx, sessionID, models.RoleAssistant, answer, contexts)
	if err != nil {
		return nil, err
	}
	return &Result{Answer: msg, Contexts: contexts}, nil
}

func (o *Orchestrator) generate(ctx context.Context, queryText string, results []retrieval.Result) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.gateway.Chat(genCtx, llm.ChatRequest{
		Model: o.model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(queryText, results)},
		},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || genCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("generation exceeded %s: %w", o.timeout, errs.ErrUpstreamTimeout)
		}
		return "", errs.Upstream("generator", err)
	}
	return resp.Content, nil
}

// buildPrompt joins context texts under a character budget, never
// splitting one chunk across the cutoff.
func buildPrompt(queryText string, results []retrieval.Result) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nCONTEXT:\n")
	used := 0
	for i, r := range results {
		if used+len(r.Text) > promptCharBudget {
			break
		}
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString(r.Text)
		used += len(r.Text)
	}
	b.WriteString("\n\nQUESTION:\n")
	b.WriteString(queryText)
	return b.String()
}
