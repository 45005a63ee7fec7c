// Package api wires HTTP transport: routing, middleware, and handler
// construction over the service layer.
package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/queryhub/queryhub/internal/answer"
	"github.com/queryhub/queryhub/internal/api/handlers"
	"github.com/queryhub/queryhub/internal/api/middleware"
	"github.com/queryhub/queryhub/internal/cache"
	"github.com/queryhub/queryhub/internal/chat"
	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/document"
	"github.com/queryhub/queryhub/internal/embedding"
	"github.com/queryhub/queryhub/internal/llm"
	"github.com/queryhub/queryhub/internal/queue"
	"github.com/queryhub/queryhub/internal/registry"
	"github.com/queryhub/queryhub/internal/retrieval"
	"github.com/queryhub/queryhub/internal/storage"
	"github.com/queryhub/queryhub/internal/store"
	"github.com/queryhub/queryhub/internal/vectorindex"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
	}
}

// Setup builds the service graph and mounts all routes.
func (rt *Router) Setup() (http.Handler, error) {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	blobs, err := storage.New(rt.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	index, err := vectorindex.New(rt.cfg.Vector, rt.db)
	if err != nil {
		return nil, fmt.Errorf("init vector index: %w", err)
	}

	st := store.NewPostgresStore(rt.db)
	manager := vectorindex.NewManager(index, rt.cfg.Embedding.Dimension)
	reg := registry.New(st, manager)
	docSvc := document.NewService(reg, blobs, queue.NewClient(rt.cfg.Redis), cache.NewCache(rt.redis))

	chatSvc := chat.NewService(st)
	embedder := embedding.NewOpenAIEmbedder(rt.cfg.LLM.OpenAIKey, rt.cfg.Embedding.Model)
	engine := retrieval.NewEngine(st, embedder, manager, rt.cfg.Retrieval.TopK)
	gateway := llm.NewGateway(rt.cfg.LLM)
	orchestrator := answer.NewOrchestrator(chatSvc, engine, gateway, rt.cfg.LLM, rt.cfg.Retrieval)

	r.Route("/api/v1", func(r chi.Router) {
		docH := handlers.NewDocumentHandler(docSvc)
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", docH.Upload)
			r.Get("/", docH.List)
			r.Get("/{id}", docH.Get)
			r.Get("/{id}/status", docH.Status)
			r.Delete("/{id}", docH.Delete)
		})

		chatH := handlers.NewChatHandler(chatSvc)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", chatH.CreateSession)
			r.Get("/", chatH.ListSessions)
			r.Get("/{id}/messages", chatH.ListMessages)
			r.Post("/{id}/messages", chatH.AppendMessage)
			r.Delete("/{id}", chatH.DeleteSession)
		})

		queryH := handlers.NewQueryHandler(orchestrator, chatSvc)
		r.Post("/query", queryH.Ask)
	})

	return r, nil
}
