package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kensaku/internal/backend"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/rerank"
	"github.com/hyperjump/kensaku/internal/storage"
)

// NoteAllBackendsFailed is the response note when no backend call succeeded.
const NoteAllBackendsFailed = "all backends unavailable; returning no results"

// Engine runs hybrid search over the configured backends.
type Engine struct {
	backends *backend.Set
	store    storage.Storage
	reranker *rerank.Service
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates a search engine. reranker and m may be nil.
func NewEngine(backends *backend.Set, store storage.Storage, reranker *rerank.Service, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		backends: backends,
		store:    store,
		reranker: reranker,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Reranker returns the engine's reranker service, possibly nil.
func (e *Engine) Reranker() *rerank.Service {
	return e.reranker
}

// Backends returns the adapter set the engine searches.
func (e *Engine) Backends() *backend.Set {
	return e.backends
}

type call struct {
	collection string
	adapter    backend.Adapter
	source     models.Source
}

type fanOutResult struct {
	batches [][]models.Candidate
	failed  int
	total   int
}

// fanOut queries every (collection, source) pair concurrently. Each call gets
// its own timeout; a failed call contributes no candidates and never cancels
// its siblings.
func (e *Engine) fanOut(ctx context.Context, cfg *config.Config, collections []string, sources []models.Source, text string, limit int, fuzzy bool) fanOutResult {
	var calls []call
	for _, c := range collections {
		for _, s := range sources {
			calls = append(calls, call{collection: c, adapter: e.backends.Adapter(s), source: s})
		}
	}
	res := fanOutResult{batches: make([][]models.Candidate, len(calls)), total: len(calls)}
	errs := make([]error, len(calls))

	var g errgroup.Group
	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			if c.adapter == nil {
				errs[i] = &models.BackendError{Collection: c.collection, Source: c.source, Err: errors.New("no adapter configured")}
				return nil
			}
			cctx := ctx
			if cfg.Search.BackendTimeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, cfg.Search.BackendTimeout)
				defer cancel()
			}
			cands, err := c.adapter.Search(cctx, backend.Query{
				Collection: c.collection,
				Text:       text,
				Limit:      limit,
				Fuzzy:      fuzzy,
				TitleBoost: cfg.Search.KeywordTitleBoost,
			})
			if err != nil {
				errs[i] = err
				return nil
			}
			res.batches[i] = cands
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		res.failed++
		e.metrics.RecordBackendFailure(calls[i].collection, string(calls[i].source))
		e.logger.Warn("backend call failed",
			zap.String("collection", calls[i].collection),
			zap.String("source", string(calls[i].source)),
			zap.Error(err))
	}
	return res
}

func (r fanOutResult) note() string {
	switch {
	case r.total > 0 && r.failed == r.total:
		return NoteAllBackendsFailed
	case r.failed > 0:
		return fmt.Sprintf("partial results: %d of %d backend calls failed", r.failed, r.total)
	}
	return ""
}

// Search runs the full pipeline for one resolved request: fan-out, fusion,
// threshold, diversity, content dedupe, optional rerank and assembly.
func (e *Engine) Search(ctx context.Context, cfg *config.Config, p models.SearchParams) (*models.SearchResponse, error) {
	start := e.now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := p.TopK * max(cfg.Search.OverfetchFactor, 1)
	if p.UseReranking {
		limit = max(limit, cfg.Reranker.MaxCandidates)
	}
	fo := e.fanOut(ctx, cfg, p.Collections, p.Mode.Sources(), p.Query, limit, p.Fuzzy)

	resp := &models.SearchResponse{
		Query:    p.Query,
		Results:  []models.Result{},
		Note:     fo.note(),
		Reranked: string(rerank.OutcomeDisabled),
	}
	if fo.failed == fo.total && fo.total > 0 {
		resp.TookMS = e.now().Sub(start).Milliseconds()
		return resp, nil
	}

	fused := Fuse(fo.batches, FusionOptions{
		Weights:      p.Weights,
		UseWeighting: p.UseWeighting,
		MergePolicy:  cfg.Search.MergePolicy,
		Now:          start,
	})
	fused = ApplyThreshold(fused, p.Threshold, p.Mode)
	fused = Diversify(fused, cfg.Search.DiversityFactor)
	fused = DedupeContent(fused, cfg.Search.ContentDedupeThreshold)

	if p.UseReranking {
		n := min(len(fused), max(p.TopK, cfg.Reranker.MaxCandidates))
		var outcome rerank.Outcome
		fused, outcome = e.reranker.Rerank(ctx, p.Query, fused[:n], p.Weights.RerankerWeight)
		resp.Reranked = string(outcome)
		e.metrics.RecordRerank(string(outcome))
	}

	resp.Results = Assemble(fused, p.TopK)
	resp.TookMS = e.now().Sub(start).Milliseconds()
	e.logger.Debug("search complete",
		zap.String("query", p.Query),
		zap.String("mode", string(p.Mode)),
		zap.Strings("collections", p.Collections),
		zap.Int("results", len(resp.Results)),
		zap.String("reranked", resp.Reranked))
	return resp, nil
}
