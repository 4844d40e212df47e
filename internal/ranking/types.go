// Package ranking provides the score multipliers applied during fusion:
// collection and source weights, recency decay, and diversity adjustment.
package ranking

import (
	"time"

	"github.com/hyperjump/kensaku/internal/config"
)

// ScoringContext carries what a multiplier may inspect about one candidate.
type ScoringContext struct {
	Collection string
	Source     string
	Timestamp  *time.Time
	Now        time.Time
}

// Multiplier scales a score. Implementations must never return a negative value
// for a non-negative input.
type Multiplier interface {
	Name() string
	Multiply(ctx *ScoringContext, score float64) float64
}

// Pipeline applies multipliers in order.
type Pipeline []Multiplier

// NewWeightingPipeline returns the collection, source and recency multipliers for w.
func NewWeightingPipeline(w config.WeightsConfig) Pipeline {
	return Pipeline{
		&CollectionMultiplier{weights: w},
		&SourceMultiplier{weights: w},
		NewRecencyMultiplier(w.RecencyWeight, w.RecencyDecayDays),
	}
}

// Apply runs every multiplier over score.
func (p Pipeline) Apply(ctx *ScoringContext, score float64) float64 {
	for _, m := range p {
		score = m.Multiply(ctx, score)
	}
	return score
}
