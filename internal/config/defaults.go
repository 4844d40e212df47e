package config

import "time"

// Collection names known to the engine.
const (
	CollectionEmail    = "email"
	CollectionDocument = "document"
	CollectionWeb      = "web"
)

// Merge policies for candidates found by both backends.
const (
	MergeSum = "sum"
	MergeMax = "max"
)

// Default returns a fully populated configuration. Boolean features that are on by
// default are set here because ApplyDefaults cannot tell false from unset.
func Default() *Config {
	cfg := &Config{}
	cfg.Search.UseWeighting = true
	cfg.Metadata.Fuzzy = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 20
	}
	if cfg.Server.Burst == 0 {
		cfg.Server.Burst = 40
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kensaku/data/db/records.db"
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "/usr/local/var/kensaku/data/indices"
	}
	if len(cfg.Collections) == 0 {
		cfg.Collections = []string{CollectionEmail, CollectionDocument, CollectionWeb}
	}
	if cfg.Embedding.ModelName == "" {
		cfg.Embedding.ModelName = "all-MiniLM-L6-v2"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}
	if cfg.Vector.HNSWM == 0 {
		cfg.Vector.HNSWM = 16
	}
	if cfg.Vector.HNSWEfSearch == 0 {
		cfg.Vector.HNSWEfSearch = 64
	}
	if cfg.Search.Mode == "" {
		cfg.Search.Mode = "combined"
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 10
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 500
	}
	if cfg.Search.SimilarityThreshold == 0 {
		cfg.Search.SimilarityThreshold = 0.5
	}
	if cfg.Search.KeywordTitleBoost == 0 {
		cfg.Search.KeywordTitleBoost = 1.0
	}
	if cfg.Search.Fuzziness == 0 {
		cfg.Search.Fuzziness = 2
	}
	if cfg.Search.MergePolicy == "" {
		cfg.Search.MergePolicy = MergeSum
	}
	if cfg.Search.BackendTimeout == 0 {
		cfg.Search.BackendTimeout = 5 * time.Second
	}
	if cfg.Search.OverfetchFactor == 0 {
		cfg.Search.OverfetchFactor = 3
	}
	if cfg.Search.ContentDedupeThreshold == 0 {
		cfg.Search.ContentDedupeThreshold = 0.85
	}
	if cfg.Weights.DocumentCollectionWeight == 0 {
		cfg.Weights.DocumentCollectionWeight = 1.0
	}
	if cfg.Weights.EmailCollectionWeight == 0 {
		cfg.Weights.EmailCollectionWeight = 1.0
	}
	if cfg.Weights.WebCollectionWeight == 0 {
		cfg.Weights.WebCollectionWeight = 1.0
	}
	if cfg.Weights.VectorWeight == 0 {
		cfg.Weights.VectorWeight = 1.0
	}
	if cfg.Weights.KeywordWeight == 0 {
		cfg.Weights.KeywordWeight = 1.0
	}
	if cfg.Weights.RecencyWeight == 0 {
		cfg.Weights.RecencyWeight = 0.1
	}
	if cfg.Weights.RecencyDecayDays == 0 {
		cfg.Weights.RecencyDecayDays = 365
	}
	if cfg.Weights.RerankerWeight == 0 {
		cfg.Weights.RerankerWeight = 1.0
	}
	if cfg.Reranker.ModelName == "" {
		cfg.Reranker.ModelName = "ms-marco-MiniLM-L-6-v2"
	}
	if cfg.Reranker.MaxTokens == 0 {
		cfg.Reranker.MaxTokens = 512
	}
	if cfg.Reranker.MaxCandidates == 0 {
		cfg.Reranker.MaxCandidates = 50
	}
	if cfg.Reranker.Timeout == 0 {
		cfg.Reranker.Timeout = 10 * time.Second
	}
	if cfg.Metadata.Threshold == 0 {
		cfg.Metadata.Threshold = 0.8
	}
	if cfg.Metadata.Aggregate == "" {
		cfg.Metadata.Aggregate = "max"
	}
	if cfg.Metadata.TopK == 0 {
		cfg.Metadata.TopK = 100
	}
	if cfg.Metadata.FetchMultiplier == 0 {
		cfg.Metadata.FetchMultiplier = 5
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = 5
	}
	if cfg.Breaker.OpenTimeout == 0 {
		cfg.Breaker.OpenTimeout = 30 * time.Second
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 30
	}
}
