package config

import (
	"errors"
	"fmt"
)

// Validate reports every invalid setting in cfg. A configuration that fails
// validation is never used.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: "+format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit must be non-negative")
	}
	if c.Server.RequestTimeout <= 0 {
		add("server.request_timeout must be positive")
	}
	if len(c.Collections) == 0 {
		add("collections must not be empty")
	}
	seen := make(map[string]bool)
	for _, name := range c.Collections {
		switch name {
		case CollectionEmail, CollectionDocument, CollectionWeb:
		default:
			add("unknown collection %q", name)
		}
		if seen[name] {
			add("duplicate collection %q", name)
		}
		seen[name] = true
	}
	if c.Embedding.Dimensions <= 0 {
		add("embedding.dimensions must be positive")
	}
	switch c.Vector.IndexType {
	case "memory", "hnsw":
	default:
		add("vector.index_type %q: must be memory or hnsw", c.Vector.IndexType)
	}
	switch c.Search.Mode {
	case "combined", "semantic", "keyword":
	default:
		add("search.mode %q: must be combined, semantic or keyword", c.Search.Mode)
	}
	if c.Search.TopK <= 0 || c.Search.TopK > c.Search.MaxTopK {
		add("search.top_k %d must be in [1,%d]", c.Search.TopK, c.Search.MaxTopK)
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		add("search.similarity_threshold must be in [0,1]")
	}
	if c.Search.Fuzziness < 0 || c.Search.Fuzziness > 2 {
		add("search.fuzziness must be in [0,2]")
	}
	if c.Search.MergePolicy != MergeSum && c.Search.MergePolicy != MergeMax {
		add("search.merge_policy %q: must be sum or max", c.Search.MergePolicy)
	}
	if c.Search.BackendTimeout <= 0 {
		add("search.backend_timeout must be positive")
	}
	if c.Search.OverfetchFactor < 1 {
		add("search.overfetch_factor must be at least 1")
	}
	if c.Search.ContentDedupeThreshold < 0 || c.Search.ContentDedupeThreshold > 1 {
		add("search.content_dedupe_threshold must be in [0,1]")
	}
	if c.Search.DiversityFactor < 0 || c.Search.DiversityFactor > 1 {
		add("search.diversity_factor must be in [0,1]")
	}
	if c.Search.KeywordTitleBoost < 1 {
		add("search.keyword_title_boost must be at least 1")
	}
	if err := c.Weights.Validate(); err != nil {
		add("%v", err)
	}
	if c.Reranker.MaxCandidates <= 0 {
		add("reranker.max_candidates must be positive")
	}
	if c.Reranker.Timeout <= 0 {
		add("reranker.timeout must be positive")
	}
	if c.Metadata.Threshold < 0 || c.Metadata.Threshold > 1 {
		add("metadata.threshold must be in [0,1]")
	}
	if c.Metadata.Aggregate != "max" && c.Metadata.Aggregate != "mean" {
		add("metadata.aggregate %q: must be max or mean", c.Metadata.Aggregate)
	}
	if c.Metadata.FetchMultiplier < 1 {
		add("metadata.fetch_multiplier must be at least 1")
	}
	if c.Breaker.MaxFailures == 0 {
		add("breaker.max_failures must be positive")
	}

	return errors.Join(errs...)
}

// CollectionEnabled reports whether name is one of the configured collections.
func (c *Config) CollectionEnabled(name string) bool {
	for _, n := range c.Collections {
		if n == name {
			return true
		}
	}
	return false
}
