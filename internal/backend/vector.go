package backend

import (
	"context"
	"fmt"

	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

// VectorAdapter embeds the query and searches the collection's vector index.
// Fuzzy has no effect; nearest-neighbour search is already approximate.
type VectorAdapter struct {
	embedder embedding.Embedder
	indexes  map[string]vector.VectorIndex
	store    storage.Storage
}

// NewVectorAdapter returns an adapter over the given per-collection indexes.
func NewVectorAdapter(embedder embedding.Embedder, indexes map[string]vector.VectorIndex, store storage.Storage) *VectorAdapter {
	return &VectorAdapter{embedder: embedder, indexes: indexes, store: store}
}

// Source returns models.SourceVector.
func (a *VectorAdapter) Source() models.Source {
	return models.SourceVector
}

// Search returns up to q.Limit candidates with cosine scores in [0,1].
func (a *VectorAdapter) Search(ctx context.Context, q Query) ([]models.Candidate, error) {
	idx, ok := a.indexes[q.Collection]
	if !ok || idx == nil {
		return nil, unavailable(q, models.SourceVector, fmt.Errorf("no vector index open for %s", q.Collection))
	}
	if idx.Size() == 0 || q.Limit <= 0 {
		return []models.Candidate{}, nil
	}
	emb, err := a.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, unavailable(q, models.SourceVector, fmt.Errorf("embed query: %w", err))
	}
	results, err := idx.Search(ctx, emb, q.Limit)
	if err != nil {
		return nil, unavailable(q, models.SourceVector, fmt.Errorf("vector search: %w", err))
	}
	hits := make([]hit, len(results))
	for i, r := range results {
		hits[i] = hit{id: r.ID, score: r.Score}
	}
	cands, err := hydrate(ctx, a.store, q.Collection, models.SourceVector, hits)
	if err != nil {
		return nil, unavailable(q, models.SourceVector, err)
	}
	return cands, nil
}
