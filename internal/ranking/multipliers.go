package ranking

import (
	"math"
	"time"

	"github.com/hyperjump/kensaku/internal/config"
)

// CollectionMultiplier scales by the candidate's collection weight.
type CollectionMultiplier struct {
	weights config.WeightsConfig
}

// Name returns the multiplier name.
func (m *CollectionMultiplier) Name() string {
	return "collection"
}

// Multiply applies the collection weight.
func (m *CollectionMultiplier) Multiply(ctx *ScoringContext, score float64) float64 {
	return score * m.weights.CollectionWeight(ctx.Collection)
}

// SourceMultiplier scales by the weight of the backend that produced the candidate.
type SourceMultiplier struct {
	weights config.WeightsConfig
}

// Name returns the multiplier name.
func (m *SourceMultiplier) Name() string {
	return "source"
}

// Multiply applies the source weight.
func (m *SourceMultiplier) Multiply(ctx *ScoringContext, score float64) float64 {
	return score * m.weights.SourceWeight(ctx.Source)
}

// RecencyMultiplier interpolates between ignoring age (weight 0) and applying the
// full exponential decay (weight 1).
type RecencyMultiplier struct {
	weight    float64
	decayDays float64
}

// NewRecencyMultiplier creates a new RecencyMultiplier.
func NewRecencyMultiplier(weight, decayDays float64) *RecencyMultiplier {
	return &RecencyMultiplier{weight: weight, decayDays: decayDays}
}

// Name returns the multiplier name.
func (m *RecencyMultiplier) Name() string {
	return "recency"
}

// Multiply applies (1 - weight) + weight*decay. Candidates without a timestamp are
// left unchanged.
func (m *RecencyMultiplier) Multiply(ctx *ScoringContext, score float64) float64 {
	if ctx.Timestamp == nil || m.weight == 0 {
		return score
	}
	decay := DecayFactor(ctx.Now.Sub(*ctx.Timestamp), m.decayDays)
	return score * ((1 - m.weight) + m.weight*decay)
}

// DecayFactor returns exp(-age_days/decayDays). Ages at or below zero (including
// future timestamps) return 1.
func DecayFactor(age time.Duration, decayDays float64) float64 {
	if age <= 0 || decayDays <= 0 {
		return 1.0
	}
	days := age.Hours() / 24
	return math.Exp(-days / decayDays)
}
