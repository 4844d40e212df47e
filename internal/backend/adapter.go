// Package backend adapts the vector and keyword indexes to one query contract.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

// Query is one adapter call for a single collection.
type Query struct {
	Collection string
	Text       string
	Limit      int
	Fuzzy      bool
	// TitleBoost weights title matches over content matches; values <= 1 query both as one field.
	TitleBoost float64
}

// Adapter returns raw candidates for a collection. No matches is an empty
// slice and a nil error; failing to reach the index returns a
// *models.BackendError wrapping models.ErrBackendUnavailable.
type Adapter interface {
	Source() models.Source
	Search(ctx context.Context, q Query) ([]models.Candidate, error)
}

func unavailable(q Query, src models.Source, err error) error {
	var be *models.BackendError
	if errors.As(err, &be) {
		return err
	}
	return &models.BackendError{Collection: q.Collection, Source: src, Err: err}
}

type hit struct {
	id    string
	score float64
}

// hydrate loads records for hits in order. Hits whose record is missing from
// the store are stale index entries and are skipped.
func hydrate(ctx context.Context, store storage.Storage, collection string, src models.Source, hits []hit) ([]models.Candidate, error) {
	if len(hits) == 0 {
		return []models.Candidate{}, nil
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	records, err := store.GetRecords(ctx, collection, ids)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	out := make([]models.Candidate, 0, len(hits))
	for _, h := range hits {
		rec, ok := records[h.id]
		if !ok {
			continue
		}
		out = append(out, models.Candidate{Record: *rec, Source: src, RawScore: h.score})
	}
	return out, nil
}
