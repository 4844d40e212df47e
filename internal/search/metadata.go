package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/metadata"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/ranking"
	"github.com/hyperjump/kensaku/internal/rerank"
)

// metadataContentWeight is the share of the content score when a metadata
// search also carries a free-text query.
const metadataContentWeight = 0.5

// MetadataSearch scans each requested collection for records whose metadata
// matches p.Fields. With p.Query set, matches are re-scored as an even blend of
// metadata and normalized keyword relevance. Chunks sharing a parent_hash
// collapse to their best-scoring one.
func (e *Engine) MetadataSearch(ctx context.Context, cfg *config.Config, p models.MetadataParams) (*models.SearchResponse, error) {
	start := e.now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matcher := metadata.NewMatcher(metadata.Options{
		Fuzzy:     p.Fuzzy,
		Threshold: p.Threshold,
		Aggregate: p.Aggregate,
	})
	fetch := p.TopK * max(cfg.Metadata.FetchMultiplier, 1)

	batches := make([][]models.Candidate, len(p.Collections))
	errs := make([]error, len(p.Collections))
	var g errgroup.Group
	for i, c := range p.Collections {
		i, c := i, c
		g.Go(func() error {
			cctx := ctx
			if cfg.Search.BackendTimeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, cfg.Search.BackendTimeout)
				defer cancel()
			}
			err := e.store.ScanCollection(cctx, c, func(rec *models.Record) error {
				m, ok := matcher.Match(p.Fields, rec)
				if ok {
					batches[i] = append(batches[i], models.Candidate{Record: *rec, Source: models.SourceMetadata, RawScore: m.Score})
				}
				return nil
			})
			if err != nil {
				errs[i] = &models.BackendError{Collection: c, Source: models.SourceMetadata, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	fo := fanOutResult{total: len(p.Collections)}
	for i, err := range errs {
		if err != nil {
			fo.failed++
			batches[i] = nil
			e.metrics.RecordBackendFailure(p.Collections[i], string(models.SourceMetadata))
			e.logger.Warn("metadata scan failed",
				zap.String("collection", p.Collections[i]),
				zap.Error(err))
		}
	}

	resp := &models.SearchResponse{
		Query:    p.Query,
		Results:  []models.Result{},
		Note:     fo.note(),
		Reranked: string(rerank.OutcomeDisabled),
	}

	var results []models.FusedResult
	for _, batch := range batches {
		for _, c := range batch {
			rec := c.Record
			rec.Timestamp = ranking.TimestampFor(&rec)
			results = append(results, models.FusedResult{
				Record:         rec,
				FusedScore:     c.RawScore,
				Sources:        []models.Source{models.SourceMetadata},
				SearchProvider: string(models.SourceMetadata),
			})
		}
	}

	if p.Query != "" && len(results) > 0 {
		content := e.contentScores(ctx, cfg, p, fetch)
		for i := range results {
			cs := content[results[i].Key()]
			results[i].FusedScore = (1-metadataContentWeight)*results[i].FusedScore + metadataContentWeight*cs
			if cs > 0 {
				results[i].Sources = append(results[i].Sources, models.SourceKeyword)
				results[i].SearchProvider = providerLabel(results[i].Sources)
			}
		}
	}
	for i := range results {
		results[i].OriginalScore = results[i].FusedScore
	}

	SortResults(results)
	results = CollapseByParent(results)
	if len(results) > fetch {
		results = results[:fetch]
	}
	resp.Results = Assemble(results, p.TopK)
	resp.TookMS = e.now().Sub(start).Milliseconds()
	e.logger.Debug("metadata search complete",
		zap.Int("fields", len(p.Fields)),
		zap.Strings("collections", p.Collections),
		zap.Int("results", len(resp.Results)))
	return resp, nil
}

// contentScores runs the keyword adapter per collection and returns the
// batch-normalized relevance of each hit. Failures leave the content score at 0.
func (e *Engine) contentScores(ctx context.Context, cfg *config.Config, p models.MetadataParams, limit int) map[models.DedupeKey]float64 {
	fo := e.fanOut(ctx, cfg, p.Collections, []models.Source{models.SourceKeyword}, p.Query, limit, false)
	out := make(map[models.DedupeKey]float64)
	for _, batch := range fo.batches {
		norms := NormalizeScores(batch)
		for i, c := range batch {
			k := c.Key()
			out[k] = max(out[k], norms[i])
		}
	}
	return out
}

// CollapseByParent keeps the first (best) result per (collection, parent_hash).
// Results without a parent_hash are kept as they are. Input must be sorted.
func CollapseByParent(results []models.FusedResult) []models.FusedResult {
	seen := make(map[string]bool)
	out := make([]models.FusedResult, 0, len(results))
	for _, r := range results {
		ph := r.MetadataString("parent_hash")
		if ph == "" {
			out = append(out, r)
			continue
		}
		key := fmt.Sprintf("%s\x00%s", r.Collection, ph)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
