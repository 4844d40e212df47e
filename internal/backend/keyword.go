package backend

import (
	"context"
	"fmt"

	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

// KeywordAdapter searches the collection's bleve index. Fuzzy expands each
// query term to terms within the configured edit distance.
type KeywordAdapter struct {
	indexes   map[string]keyword.KeywordIndex
	store     storage.Storage
	fuzziness int
}

// NewKeywordAdapter returns an adapter over the given per-collection indexes.
func NewKeywordAdapter(indexes map[string]keyword.KeywordIndex, store storage.Storage, fuzziness int) *KeywordAdapter {
	return &KeywordAdapter{indexes: indexes, store: store, fuzziness: fuzziness}
}

// Source returns models.SourceKeyword.
func (a *KeywordAdapter) Source() models.Source {
	return models.SourceKeyword
}

// Search returns up to q.Limit candidates with unbounded relevance scores.
func (a *KeywordAdapter) Search(ctx context.Context, q Query) ([]models.Candidate, error) {
	idx, ok := a.indexes[q.Collection]
	if !ok || idx == nil {
		return nil, unavailable(q, models.SourceKeyword, fmt.Errorf("no keyword index open for %s", q.Collection))
	}
	results, err := idx.Search(ctx, q.Text, q.Limit, &keyword.SearchOptions{
		TitleBoost:   q.TitleBoost,
		FuzzyEnabled: q.Fuzzy,
		Fuzziness:    a.fuzziness,
	})
	if err != nil {
		return nil, unavailable(q, models.SourceKeyword, fmt.Errorf("keyword search: %w", err))
	}
	hits := make([]hit, len(results))
	for i, r := range results {
		hits[i] = hit{id: r.ID, score: r.Score}
	}
	cands, err := hydrate(ctx, a.store, q.Collection, models.SourceKeyword, hits)
	if err != nil {
		return nil, unavailable(q, models.SourceKeyword, err)
	}
	return cands, nil
}
