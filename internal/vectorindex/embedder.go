package vectorindex

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Engine produces embedding vectors for text. *ollama.Client satisfies it.
type Engine interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Embedder turns chunk texts into vectors using a fixed embedding model.
type Embedder struct {
	engine Engine
	model  string
}

// NewEmbedder creates an Embedder bound to the given engine and model.
func NewEmbedder(engine Engine, model string) *Embedder {
	return &Embedder{engine: engine, model: model}
}

// Embed produces the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return v, nil
}

// EmbedBatch embeds all texts concurrently with a bounded number of in-flight
// requests. Results keep the input order. Any failure cancels the remaining
// work and fails the whole batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, text := range texts {
		g.Go(func() error {
			v, err := e.engine.Embed(gctx, e.model, text)
			if err != nil {
				return fmt.Errorf("embedding chunk %d: %w", i, err)
			}
			vectors[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
