package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/database"
	"github.com/queryhub/queryhub/internal/embedding"
	"github.com/queryhub/queryhub/internal/ingest"
	"github.com/queryhub/queryhub/internal/queue"
	"github.com/queryhub/queryhub/internal/registry"
	"github.com/queryhub/queryhub/internal/storage"
	"github.com/queryhub/queryhub/internal/store"
	"github.com/queryhub/queryhub/internal/vectorindex"
	"github.com/queryhub/queryhub/pkg/chunker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	blobs, err := storage.New(cfg.Storage)
	if err != nil {
		slog.Error("failed to init storage", "error", err)
		os.Exit(1)
	}
	index, err := vectorindex.New(cfg.Vector, db)
	if err != nil {
		slog.Error("failed to init vector index", "error", err)
		os.Exit(1)
	}

	st := store.NewPostgresStore(db)
	manager := vectorindex.NewManager(index, cfg.Embedding.Dimension)
	reg := registry.New(st, manager)
	embedder := embedding.NewOpenAIEmbedder(cfg.LLM.OpenAIKey, cfg.Embedding.Model)

	worker := ingest.NewWorker(reg, st, blobs, embedder, manager, chunker.Options{
		ChunkSize: cfg.Ingest.ChunkSize,
		Overlap:   cfg.Ingest.Overlap,
	})

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Ingest.Concurrency,
		},
	)

	handlers := queue.NewHandlersRegistry()
	handlers.Register(queue.TypeDocumentIngest, ingest.NewTaskHandler(worker))

	slog.Info("starting ingestion worker", "concurrency", cfg.Ingest.Concurrency)
	if err := srv.Run(handlers.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
