package search

import (
	"github.com/google/uuid"

	"github.com/hyperjump/kensaku/internal/models"
)

// Assemble truncates results to topK and converts them to response records.
// Records without a stored ID get a random one so every result is addressable.
func Assemble(results []models.FusedResult, topK int) []models.Result {
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	out := make([]models.Result, len(results))
	for i, r := range results {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		meta := r.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		out[i] = models.Result{
			ID:             id,
			Score:          r.FusedScore,
			OriginalScore:  r.OriginalScore,
			RerankScore:    r.RerankScore,
			Metadata:       meta,
			Content:        r.Content,
			SearchProvider: r.SearchProvider,
			Collection:     r.Collection,
			DocID:          r.DocID,
			ChunkID:        r.ChunkID,
			ChunkNumber:    r.ChunkNumber,
			TotalChunks:    r.TotalChunks,
		}
	}
	return out
}
