// Package queue moves document ingestion off the request path onto an
// asynq-backed task queue consumed by cmd/worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/queryhub/queryhub/internal/config"
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueDocumentIngest schedules a single ingestion attempt. MaxRetry is
// zero on purpose: a failed ingestion is recorded as status=failed on the
// document, never retried silently by the queue.
func (c *Client) EnqueueDocumentIngest(ctx context.Context, documentID uuid.UUID) error {
	payload := DocumentIngestPayload{DocumentID: documentID.String()}
	return c.enqueue(ctx, TypeDocumentIngest, payload, asynq.MaxRetry(0), asynq.Timeout(10*time.Minute))
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
