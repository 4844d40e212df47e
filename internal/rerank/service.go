// Package rerank re-scores fused results with a pairwise relevance model.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// Outcome reports what the reranker did for one request.
type Outcome string

const (
	// OutcomeDisabled means reranking was not requested, not configured, or had fewer than two candidates.
	OutcomeDisabled Outcome = "disabled"
	// OutcomeDegraded means loading or inference failed and the input order was kept.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeApplied means every candidate received a rerank score.
	OutcomeApplied Outcome = "applied"
)

// State is the model lifecycle state.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unloaded"
	}
}

// Pair is one (query, passage) input to the model.
type Pair struct {
	Query   string
	Passage string
}

// Model scores query/passage pairs. Higher is more relevant; scores are logits.
type Model interface {
	Predict(ctx context.Context, pairs []Pair) ([]float64, error)
	Close() error
}

// Loader constructs the model. It is called at most once concurrently.
type Loader func() (Model, error)

// Options configure a Service.
type Options struct {
	ModelName string
	Timeout   time.Duration
}

// Service owns the process-wide reranking model. The model is loaded lazily on
// first use; concurrent first requests share one load. A failed load returns
// the service to StateUnloaded so a later request may retry.
type Service struct {
	loader Loader
	opts   Options
	logger *zap.Logger

	group singleflight.Group
	state atomic.Int32
	mu    sync.RWMutex
	model Model
}

// NewService returns a service that loads its model with loader. A nil loader
// disables reranking.
func NewService(loader Loader, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{loader: loader, opts: opts, logger: logger}
}

// Enabled reports whether a model is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.loader != nil
}

// State returns the current lifecycle state. A nil service is Unloaded.
func (s *Service) State() State {
	if s == nil {
		return StateUnloaded
	}
	return State(s.state.Load())
}

// ModelName returns the configured model name.
func (s *Service) ModelName() string {
	return s.opts.ModelName
}

// Rerank scores each result against query and blends the model score into the
// fused score: score = weight*sigmoid(logit) + (1-weight)*original. The
// returned slice is sorted by the blended score; ties keep their prior order.
// On any failure the input is returned unchanged with OutcomeDegraded.
func (s *Service) Rerank(ctx context.Context, query string, results []models.FusedResult, weight float64) ([]models.FusedResult, Outcome) {
	if !s.Enabled() || len(results) < 2 {
		return results, OutcomeDisabled
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	scores, err := s.predict(ctx, query, results)
	if err != nil {
		s.logger.Warn("rerank failed, keeping fused order",
			zap.String("model", s.opts.ModelName),
			zap.Int("candidates", len(results)),
			zap.Error(err))
		return results, OutcomeDegraded
	}

	out := make([]models.FusedResult, len(results))
	for i, r := range results {
		rs := utils.Sigmoid(scores[i])
		r.OriginalScore = r.FusedScore
		r.RerankScore = &rs
		r.FusedScore = weight*rs + (1-weight)*r.OriginalScore
		out[i] = r
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FusedScore > out[j].FusedScore
	})
	return out, OutcomeApplied
}

func (s *Service) predict(ctx context.Context, query string, results []models.FusedResult) ([]float64, error) {
	model, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}
	pairs := make([]Pair, len(results))
	for i, r := range results {
		pairs[i] = Pair{Query: query, Passage: r.Content}
	}
	scores, err := model.Predict(ctx, pairs)
	if err != nil {
		return nil, fmt.Errorf("%w: predict: %v", models.ErrRerankFailure, err)
	}
	if len(scores) != len(pairs) {
		return nil, fmt.Errorf("%w: model returned %d scores for %d pairs", models.ErrRerankFailure, len(scores), len(pairs))
	}
	for i, v := range scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite score %v for candidate %d", models.ErrRerankFailure, v, i)
		}
	}
	return scores, nil
}

// ensure returns the ready model, loading it through the single-flight group.
// A caller whose context ends while the load is in progress gives up without
// cancelling the load.
func (s *Service) ensure(ctx context.Context) (Model, error) {
	s.mu.RLock()
	m := s.model
	s.mu.RUnlock()
	if m != nil {
		return m, nil
	}

	ch := s.group.DoChan("load", func() (interface{}, error) {
		s.mu.RLock()
		existing := s.model
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		s.state.Store(int32(StateLoading))
		start := time.Now()
		loaded, err := s.loader()
		if err != nil {
			s.state.Store(int32(StateUnloaded))
			return nil, err
		}
		if loaded == nil {
			s.state.Store(int32(StateUnloaded))
			return nil, errors.New("loader returned nil model")
		}
		s.mu.Lock()
		s.model = loaded
		s.mu.Unlock()
		s.state.Store(int32(StateReady))
		s.logger.Info("reranker model loaded",
			zap.String("model", s.opts.ModelName),
			zap.Duration("took", time.Since(start)))
		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for model: %v", models.ErrRerankFailure, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: load %s: %v", models.ErrRerankFailure, s.opts.ModelName, res.Err)
		}
		return res.Val.(Model), nil
	}
}

// Close releases the model if it was loaded.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		return nil
	}
	err := s.model.Close()
	s.model = nil
	s.state.Store(int32(StateUnloaded))
	return err
}
