package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryhub/queryhub/internal/answer"
	"github.com/queryhub/queryhub/internal/chat"
	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/document"
	"github.com/queryhub/queryhub/internal/llm"
	"github.com/queryhub/queryhub/internal/models"
	"github.com/queryhub/queryhub/internal/registry"
	"github.com/queryhub/queryhub/internal/retrieval"
	"github.com/queryhub/queryhub/internal/store"
	"github.com/queryhub/queryhub/internal/vectorindex"
)

type nopStorage struct{}

func (nopStorage) Upload(context.Context, string, io.Reader, int64, string) error {
	return nil
}

func (nopStorage) Download(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (nopStorage) Delete(context.Context, string) error { return nil }

type nopEnqueuer struct{}

func (nopEnqueuer) EnqueueDocumentIngest(context.Context, uuid.UUID) error { return nil }

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (fixedEmbedder) EmbedSingle(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type scriptedGateway struct {
	reply string
	err   error
}

func (g *scriptedGateway) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &llm.ChatResponse{Content: g.reply}, nil
}

type testAPI struct {
	router  http.Handler
	store   *store.MemoryStore
	gateway *scriptedGateway
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	st := store.NewMemoryStore()
	manager := vectorindex.NewManager(vectorindex.NewMemoryIndex(), 3)
	reg := registry.New(st, manager)
	docSvc := document.NewService(reg, nopStorage{}, nopEnqueuer{}, nil)
	chatSvc := chat.NewService(st)
	engine := retrieval.NewEngine(st, fixedEmbedder{}, manager, 4)
	gateway := &scriptedGateway{reply: "an answer"}
	orch := answer.NewOrchestrator(chatSvc, engine, gateway,
		config.LLMConfig{Model: "gpt-4o-mini", MaxTokens: 512, Temperature: 0.2, Timeout: time.Second},
		config.RetrievalConfig{TopK: 4, AllowUnscoped: true},
	)

	r := chi.NewRouter()
	docH := NewDocumentHandler(docSvc)
	r.Route("/documents", func(r chi.Router) {
		r.Post("/", docH.Upload)
		r.Get("/", docH.List)
		r.Get("/{id}", docH.Get)
		r.Get("/{id}/status", docH.Status)
		r.Delete("/{id}", docH.Delete)
	})
	chatH := NewChatHandler(chatSvc)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", chatH.CreateSession)
		r.Get("/", chatH.ListSessions)
		r.Get("/{id}/messages", chatH.ListMessages)
		r.Post("/{id}/messages", chatH.AppendMessage)
		r.Delete("/{id}", chatH.DeleteSession)
	})
	queryH := NewQueryHandler(orch, chatSvc)
	r.Post("/query", queryH.Ask)

	return &testAPI{router: r, store: st, gateway: gateway}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadEndpoint(t *testing.T) {
	api := newTestAPI(t)
	body, contentType := multipartUpload(t, "notes.txt", "hello world")

	req := httptest.NewRequest(http.MethodPost, "/documents/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var doc models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.Equal(t, models.DocStatusUploading, doc.Status)

	status := api.do(t, http.MethodGet, "/documents/"+doc.ID.String()+"/status", nil)
	assert.Equal(t, http.StatusOK, status.Code)
	assert.Contains(t, status.Body.String(), models.DocStatusUploading)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	api := newTestAPI(t)
	body, contentType := multipartUpload(t, "archive.zip", "PK")

	req := httptest.NewRequest(http.MethodPost, "/documents/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownDocumentIs404(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/documents/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetInvalidDocumentIDIs400(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/documents/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/sessions/", map[string]string{"title": "my chat"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var session models.ChatSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = api.do(t, http.MethodPost, "/sessions/"+session.ID.String()+"/messages", map[string]string{
		"role": "user", "content": "hello",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodPost, "/sessions/"+session.ID.String()+"/messages", map[string]string{
		"role": "system", "content": "nope",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/sessions/"+session.ID.String()+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = api.do(t, http.MethodDelete, "/sessions/"+session.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/sessions/"+session.ID.String()+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryCreatesSessionWhenOmitted(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/query", map[string]string{"query": "what is this about?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		SessionID uuid.UUID        `json:"session_id"`
		Answer    string           `json:"answer"`
		Contexts  []models.Context `json:"contexts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "an answer", resp.Answer)
	assert.NotEqual(t, uuid.Nil, resp.SessionID)

	messages, err := api.store.ListMessages(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestQueryGeneratorFailureIs502(t *testing.T) {
	api := newTestAPI(t)
	api.gateway.err = errors.New("provider down")

	rec := api.do(t, http.MethodPost, "/query", map[string]string{"query": "anything"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestQueryRequiresQuery(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/query", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
