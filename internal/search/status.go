package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

// Status counts records and index entries per enabled collection and measures
// disk usage. A disk usage failure is logged and leaves the size fields empty.
func (e *Engine) Status(ctx context.Context, cfg *config.Config) (*models.StatusResponse, error) {
	resp := &models.StatusResponse{
		Collections:     make(map[string]models.CollectionStatus, len(cfg.Collections)),
		VectorIndexType: cfg.Vector.IndexType,
		Reranker:        e.reranker.State().String(),
	}
	indexPaths := make(map[string][]string, len(cfg.Collections))
	for _, c := range cfg.Collections {
		var st models.CollectionStatus
		n, err := e.store.CountRecords(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("count %s records: %w", c, err)
		}
		st.Records = n
		if e.backends != nil {
			if ki, ok := e.backends.Keyword[c]; ok {
				st.KeywordReady = true
				if docs, err := ki.DocCount(); err == nil {
					st.KeywordDocs = docs
				}
			}
			if vi, ok := e.backends.Vector[c]; ok {
				st.VectorReady = true
				st.Vectors = vi.Size()
			}
		}
		resp.Collections[c] = st
		indexPaths[c] = []string{cfg.Storage.BlevePath(c), cfg.Storage.VectorPath(c)}
	}

	usage, err := storage.DiskUsage(cfg.Storage.DatabasePath, indexPaths)
	if err != nil {
		e.logger.Warn("disk usage failed", zap.Error(err))
		return resp, nil
	}
	total := usage.Total()
	resp.DiskUsageBytes = &total
	resp.DiskUsage = usage
	return resp, nil
}
