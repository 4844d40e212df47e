package backend

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

// Set holds the opened per-collection indexes and the adapters over them.
type Set struct {
	Keyword map[string]keyword.KeywordIndex
	Vector  map[string]vector.VectorIndex

	adapters map[models.Source]Adapter
	cfg      *config.Config
}

// Open opens the bleve and vector index of every enabled collection. A
// collection whose index cannot be opened is logged and left out, so its
// adapter calls fail with BackendUnavailable while the rest keep serving.
func Open(cfg *config.Config, emb embedding.Embedder, store storage.Storage, logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Set{
		Keyword: make(map[string]keyword.KeywordIndex),
		Vector:  make(map[string]vector.VectorIndex),
		cfg:     cfg,
	}
	for _, c := range cfg.Collections {
		ki, err := keyword.NewBleveIndex(cfg.Storage.BlevePath(c))
		if err != nil {
			logger.Warn("keyword index unavailable", zap.String("collection", c), zap.Error(err))
		} else {
			s.Keyword[c] = ki
		}

		vi, err := openVectorIndex(cfg, c)
		if err != nil {
			logger.Warn("vector index unavailable", zap.String("collection", c), zap.Error(err))
		} else {
			s.Vector[c] = vi
		}
	}
	s.adapters = map[models.Source]Adapter{
		models.SourceVector:  WithBreaker(NewVectorAdapter(emb, s.Vector, store), cfg.Breaker, logger),
		models.SourceKeyword: WithBreaker(NewKeywordAdapter(s.Keyword, store, cfg.Search.Fuzziness), cfg.Breaker, logger),
	}
	return s
}

func openVectorIndex(cfg *config.Config, collection string) (vector.VectorIndex, error) {
	idx, err := vector.NewVectorIndex(cfg.Vector.IndexType, cfg.Embedding.Dimensions, vector.Options{
		M:        cfg.Vector.HNSWM,
		EfSearch: cfg.Vector.HNSWEfSearch,
	})
	if err != nil {
		return nil, err
	}
	if err := idx.Load(cfg.Storage.VectorPath(collection)); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("load vector index: %w", err)
	}
	return idx, nil
}

// NewSet builds a Set from already-open indexes, for tests and the indexer.
func NewSet(adapters ...Adapter) *Set {
	s := &Set{adapters: make(map[models.Source]Adapter, len(adapters))}
	for _, a := range adapters {
		s.adapters[a.Source()] = a
	}
	return s
}

// Adapter returns the adapter for src, or nil.
func (s *Set) Adapter(src models.Source) Adapter {
	return s.adapters[src]
}

// SaveVectors persists every vector index to its configured path.
func (s *Set) SaveVectors() error {
	if s.cfg == nil {
		return nil
	}
	var errs []error
	for c, idx := range s.Vector {
		if err := idx.Save(s.cfg.Storage.VectorPath(c)); err != nil {
			errs = append(errs, fmt.Errorf("save %s vectors: %w", c, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every open index.
func (s *Set) Close() error {
	var errs []error
	for c, idx := range s.Keyword {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s keyword index: %w", c, err))
		}
	}
	for c, idx := range s.Vector {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s vector index: %w", c, err))
		}
	}
	return errors.Join(errs...)
}
