// Package embedding turns text into vectors via the embedding model
// collaborator.
package embedding

import "context"

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}
