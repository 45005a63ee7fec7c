package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/queryhub/queryhub/internal/queue"
)

// TaskHandler adapts the worker to asynq. Ingestion failures are
// recorded on the document row, not surfaced to the queue: returning an
// error here would make asynq re-run a task whose outcome is already
// terminal.
type TaskHandler struct {
	worker *Worker
}

func NewTaskHandler(w *Worker) *TaskHandler {
	return &TaskHandler{worker: w}
}

func (h *TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", queue.TypeDocumentIngest, err)
	}
	documentID, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("parse document id %q: %w", payload.DocumentID, err)
	}

	if err := h.worker.Ingest(ctx, documentID); err != nil {
		slog.Error("ingest task finished with failure", "document_id", documentID, "error", err)
	}
	return nil
}
