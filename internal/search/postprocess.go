package search

import (
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/ranking"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// Diversify scales each result by its (collection, provider) group adjustment
// and re-sorts. A zero factor returns results unchanged.
func Diversify(results []models.FusedResult, factor float64) []models.FusedResult {
	if factor <= 0 || len(results) < 2 {
		return results
	}
	counts := make(map[ranking.DiversityGroup]int)
	for _, r := range results {
		counts[ranking.DiversityGroup{Collection: r.Collection, Provider: r.SearchProvider}]++
	}
	if len(counts) < 2 {
		return results
	}
	adj := ranking.DiversityAdjustments(counts, factor)
	out := make([]models.FusedResult, len(results))
	for i, r := range results {
		r.FusedScore = max(r.FusedScore*adj[ranking.DiversityGroup{Collection: r.Collection, Provider: r.SearchProvider}], 0)
		r.OriginalScore = r.FusedScore
		out[i] = r
	}
	SortResults(out)
	return out
}

// DedupeContent drops document-collection results whose word-set Jaccard
// similarity to a higher-ranked document result from another doc_id exceeds
// threshold. Results must already be sorted. A threshold of 1 or more keeps all.
func DedupeContent(results []models.FusedResult, threshold float64) []models.FusedResult {
	if threshold >= 1 || threshold <= 0 {
		return results
	}
	type kept struct {
		docID string
		words map[string]struct{}
	}
	var seen []kept
	out := make([]models.FusedResult, 0, len(results))
	for _, r := range results {
		if r.Collection != config.CollectionDocument {
			out = append(out, r)
			continue
		}
		words := utils.WordSet(r.Content)
		dup := false
		for _, k := range seen {
			if k.docID != r.DocID && utils.Jaccard(words, k.words) > threshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen = append(seen, kept{docID: r.DocID, words: words})
		out = append(out, r)
	}
	return out
}
