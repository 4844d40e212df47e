// Package search fuses backend candidates into ranked results and serves the
// query and metadata search paths.
package search

import (
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/ranking"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// FusionOptions controls one fusion pass.
type FusionOptions struct {
	Weights      config.WeightsConfig
	UseWeighting bool
	// MergePolicy is config.MergeSum or config.MergeMax.
	MergePolicy string
	Now         time.Time
}

// NormalizeScores maps one adapter batch onto [0,1]. Keyword scores are divided
// by the batch maximum; vector and metadata scores are clamped.
func NormalizeScores(batch []models.Candidate) []float64 {
	out := make([]float64, len(batch))
	if len(batch) == 0 {
		return out
	}
	if batch[0].Source != models.SourceKeyword {
		for i, c := range batch {
			out[i] = utils.Clamp01(c.RawScore)
		}
		return out
	}
	maxScore := 0.0
	for _, c := range batch {
		if c.RawScore > maxScore {
			maxScore = c.RawScore
		}
	}
	if maxScore <= 0 {
		return out
	}
	for i, c := range batch {
		out[i] = utils.Clamp01(c.RawScore / maxScore)
	}
	return out
}

// Fuse normalizes each batch, applies weighting and recency when enabled, and
// merges candidates that share (collection, doc_id, chunk_id). The result is
// sorted; OriginalScore equals FusedScore on return.
func Fuse(batches [][]models.Candidate, opts FusionOptions) []models.FusedResult {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	pipeline := ranking.NewWeightingPipeline(opts.Weights)

	index := make(map[models.DedupeKey]int)
	var out []models.FusedResult
	for _, batch := range batches {
		norms := NormalizeScores(batch)
		for i, c := range batch {
			rec := c.Record
			rec.Timestamp = ranking.TimestampFor(&rec)
			score := norms[i]
			if opts.UseWeighting {
				score = pipeline.Apply(&ranking.ScoringContext{
					Collection: rec.Collection,
					Source:     string(c.Source),
					Timestamp:  rec.Timestamp,
					Now:        opts.Now,
				}, score)
			}
			score = max(score, 0)

			key := rec.Key()
			if pos, ok := index[key]; ok {
				existing := &out[pos]
				if hasSource(existing.Sources, c.Source) {
					existing.FusedScore = max(existing.FusedScore, score)
				} else {
					existing.Sources = append(existing.Sources, c.Source)
					existing.FusedScore = merge(existing.FusedScore, score, opts.MergePolicy)
				}
				continue
			}
			index[key] = len(out)
			out = append(out, models.FusedResult{
				Record:     rec,
				FusedScore: score,
				Sources:    []models.Source{c.Source},
			})
		}
	}
	for i := range out {
		out[i].SearchProvider = providerLabel(out[i].Sources)
		out[i].OriginalScore = out[i].FusedScore
	}
	SortResults(out)
	return out
}

func merge(a, b float64, policy string) float64 {
	if policy == config.MergeMax {
		return max(a, b)
	}
	return a + b
}

func hasSource(sources []models.Source, s models.Source) bool {
	for _, x := range sources {
		if x == s {
			return true
		}
	}
	return false
}

var sourceOrder = map[models.Source]int{
	models.SourceVector:   0,
	models.SourceKeyword:  1,
	models.SourceMetadata: 2,
}

// providerLabel joins sources in a fixed order, e.g. "vector+keyword".
func providerLabel(sources []models.Source) string {
	sorted := make([]models.Source, len(sources))
	copy(sorted, sources)
	sort.Slice(sorted, func(i, j int) bool { return sourceOrder[sorted[i]] < sourceOrder[sorted[j]] })
	parts := make([]string, len(sorted))
	for i, s := range sorted {
		parts[i] = string(s)
	}
	return strings.Join(parts, "+")
}

// SortResults orders by score descending, then newest timestamp, then doc_id,
// then chunk_id and collection so the order is total.
func SortResults(results []models.FusedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return less(&results[i], &results[j])
	})
}

func less(a, b *models.FusedResult) bool {
	if a.FusedScore != b.FusedScore {
		return a.FusedScore > b.FusedScore
	}
	ta, tb := a.Timestamp, b.Timestamp
	switch {
	case ta != nil && tb != nil && !ta.Equal(*tb):
		return ta.After(*tb)
	case ta != nil && tb == nil:
		return true
	case ta == nil && tb != nil:
		return false
	}
	if a.DocID != b.DocID {
		return a.DocID < b.DocID
	}
	ka, kb := a.Key(), b.Key()
	if ka.ChunkID != kb.ChunkID {
		return ka.ChunkID < kb.ChunkID
	}
	return a.Collection < b.Collection
}

// ApplyThreshold drops results whose fused score is below threshold. Keyword-only
// searches have no threshold semantics and are returned unchanged.
func ApplyThreshold(results []models.FusedResult, threshold float64, mode models.Mode) []models.FusedResult {
	if mode == models.ModeKeyword || threshold <= 0 {
		return results
	}
	kept := results[:0:0]
	for _, r := range results {
		if r.FusedScore >= threshold {
			kept = append(kept, r)
		}
	}
	return kept
}
