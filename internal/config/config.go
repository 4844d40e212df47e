// Package config provides configuration loading and structs for the kensaku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool            `yaml:"debug"`
	Server      ServerConfig    `yaml:"server"`
	Storage     StorageConfig   `yaml:"storage"`
	Collections []string        `yaml:"collections"`
	Embedding   EmbeddingConfig `yaml:"embedding"`
	Vector      VectorConfig    `yaml:"vector"`
	Search      SearchConfig    `yaml:"search"`
	Weights     WeightsConfig   `yaml:"weights"`
	Reranker    RerankerConfig  `yaml:"reranker"`
	Metadata    MetadataConfig  `yaml:"metadata"`
	Breaker     BreakerConfig   `yaml:"breaker"`
	Logging     LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RateLimit      float64       `yaml:"rate_limit"`
	Burst          int           `yaml:"burst"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds paths for the record database and indices.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	IndexDir     string `yaml:"index_dir"`
}

// BlevePath returns the keyword index directory for a collection.
func (s StorageConfig) BlevePath(collection string) string {
	return filepath.Join(s.IndexDir, "bleve", collection)
}

// VectorPath returns the vector index file for a collection.
func (s StorageConfig) VectorPath(collection string) string {
	return filepath.Join(s.IndexDir, "vector", collection+".idx")
}

// EmbeddingConfig holds embedder settings. An empty ModelPath selects the
// deterministic hash embedder.
type EmbeddingConfig struct {
	ModelName  string `yaml:"model_name"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// VectorConfig selects and tunes the vector index implementation.
type VectorConfig struct {
	IndexType    string `yaml:"index_type"`
	HNSWM        int    `yaml:"hnsw_m"`
	HNSWEfSearch int    `yaml:"hnsw_ef_search"`
}

// SearchConfig holds request defaults and fusion settings.
type SearchConfig struct {
	Mode                   string        `yaml:"mode"`
	TopK                   int           `yaml:"top_k"`
	MaxTopK                int           `yaml:"max_top_k"`
	SimilarityThreshold    float64       `yaml:"similarity_threshold"`
	Fuzzy                  bool          `yaml:"fuzzy"`
	Fuzziness              int           `yaml:"fuzziness"`
	UseWeighting           bool          `yaml:"use_weighting"`
	UseReranking           bool          `yaml:"use_reranking"`
	MergePolicy            string        `yaml:"merge_policy"`
	BackendTimeout         time.Duration `yaml:"backend_timeout"`
	OverfetchFactor        int           `yaml:"overfetch_factor"`
	ContentDedupeThreshold float64       `yaml:"content_dedupe_threshold"`
	DiversityFactor        float64       `yaml:"diversity_factor"`
	KeywordTitleBoost      float64       `yaml:"keyword_title_boost"`
}

// RerankerConfig holds cross-encoder settings. An empty ModelPath disables reranking.
type RerankerConfig struct {
	ModelName     string        `yaml:"model_name"`
	ModelPath     string        `yaml:"model_path"`
	MaxTokens     int           `yaml:"max_tokens"`
	MaxCandidates int           `yaml:"max_candidates"`
	Timeout       time.Duration `yaml:"timeout"`
}

// MetadataConfig holds defaults for the metadata search path.
type MetadataConfig struct {
	Fuzzy           bool    `yaml:"fuzzy"`
	Threshold       float64 `yaml:"threshold"`
	Aggregate       string  `yaml:"aggregate"`
	TopK            int     `yaml:"top_k"`
	FetchMultiplier int     `yaml:"fetch_multiplier"`
}

// BreakerConfig tunes the per-backend circuit breakers.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// LoggingConfig holds the optional rotating log file settings.
type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads and parses the config file at path on top of Default, expands paths,
// and validates the result. Keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Reranker.ModelPath = expandPath(cfg.Reranker.ModelPath, configDir)
	cfg.Logging.File = expandPath(cfg.Logging.File, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
