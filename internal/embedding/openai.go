package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/queryhub/queryhub/internal/errs"
)

type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// Batch in groups of 100 for API limits.
	const batchSize = 100
	var all [][]float32

	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: texts[i:end],
		})
		if err != nil {
			return nil, errs.Upstream("embedder", fmt.Errorf("embed batch %d: %w", i/batchSize, err))
		}

		for _, d := range resp.Data {
			all = append(all, d.Embedding)
		}
	}

	if len(all) != len(texts) {
		return nil, errs.Upstream("embedder", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(all)))
	}
	return all, nil
}

func (e *OpenAIEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, errs.Upstream("embedder", fmt.Errorf("no embedding returned"))
	}
	return embeddings[0], nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)
