// Package keyword provides the inverted-index backend used for lexical search.
package keyword

import (
	"context"

	"github.com/hyperjump/kensaku/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score contribution from matches in the title/subject field.
	// Use 1.0 for no boost.
	TitleBoost float64
	// FuzzyEnabled expands every query term to the terms within Fuzziness edits.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	Fuzziness int
}

// KeywordIndex defines keyword search operations over one collection.
type KeywordIndex interface {
	Index(ctx context.Context, rec *models.Record) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, id string) error
	Close() error
	// DocCount returns the total number of records in the index.
	DocCount() (uint64, error)
}

// KeywordResult is a single keyword search hit. Score is the backend-native
// relevance and is unbounded.
type KeywordResult struct {
	ID    string
	Score float64
}
