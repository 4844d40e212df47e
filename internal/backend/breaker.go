package backend

import (
	"context"
	"errors"
	"sync"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/models"
)

// Breaker wraps an Adapter with one circuit breaker per collection. An open
// breaker fails calls immediately with a BackendError instead of waiting for
// the per-call timeout.
type Breaker struct {
	inner  Adapter
	cfg    config.BreakerConfig
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]models.Candidate]
}

// WithBreaker wraps inner. A zero MaxFailures disables breaking.
func WithBreaker(inner Adapter, cfg config.BreakerConfig, logger *zap.Logger) Adapter {
	if cfg.MaxFailures == 0 {
		return inner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		inner:    inner,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]models.Candidate]),
	}
}

// Source returns the wrapped adapter's source.
func (b *Breaker) Source() models.Source {
	return b.inner.Source()
}

// Search runs the wrapped search through the collection's breaker.
func (b *Breaker) Search(ctx context.Context, q Query) ([]models.Candidate, error) {
	cb := b.breaker(q.Collection)
	out, err := cb.Execute(func() ([]models.Candidate, error) {
		return b.inner.Search(ctx, q)
	})
	if err != nil {
		return nil, unavailable(q, b.inner.Source(), err)
	}
	return out, nil
}

// State returns the breaker state for collection.
func (b *Breaker) State(collection string) gobreaker.State {
	return b.breaker(collection).State()
}

func (b *Breaker) breaker(collection string) *gobreaker.CircuitBreaker[[]models.Candidate] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[collection]; ok {
		return cb
	}
	maxFailures := b.cfg.MaxFailures
	settings := gobreaker.Settings{
		Name:        string(b.inner.Source()) + "/" + collection,
		MaxRequests: 1,
		Timeout:     b.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about backend health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Warn("circuit breaker state change",
				zap.String("backend", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	cb := gobreaker.NewCircuitBreaker[[]models.Candidate](settings)
	b.breakers[collection] = cb
	return cb
}

// IsCircuitOpen reports whether err came from an open or saturated breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
