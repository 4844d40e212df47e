// Package embedding provides text embedding via ONNX and caching.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kensaku/internal/config"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New builds the embedder described by cfg. Without a model path the
// deterministic hash embedder is used. The result is wrapped in an LRU cache
// when CacheSize is positive.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var base Embedder
	if cfg.ModelPath == "" {
		base = NewHashEmbedder(cfg.Dimensions)
	} else {
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("load embedding model %s: %w", cfg.ModelName, err)
		}
		base = e
	}
	if cfg.CacheSize <= 0 {
		return base, nil
	}
	return NewCachedEmbedder(base, cfg.CacheSize)
}

func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// ErrModelUnavailable is returned by an embedder whose model failed to load.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// UnavailableEmbedder stands in for a configured model that could not be
// loaded. Every call fails, so vector search reports the backend as down
// instead of scoring queries against vectors from a different model.
type UnavailableEmbedder struct {
	dimensions int
	cause      error
}

// NewUnavailableEmbedder returns an embedder that fails with cause.
func NewUnavailableEmbedder(dimensions int, cause error) *UnavailableEmbedder {
	return &UnavailableEmbedder{dimensions: dimensions, cause: cause}
}

func (e *UnavailableEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, e.cause)
}

func (e *UnavailableEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, e.cause)
}

func (e *UnavailableEmbedder) Dimensions() int { return e.dimensions }

func (e *UnavailableEmbedder) Close() error { return nil }
