package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if !cfg.Search.UseWeighting {
		t.Error("use_weighting should default to true")
	}
	if !cfg.Metadata.Fuzzy {
		t.Error("metadata.fuzzy should default to true")
	}
	if len(cfg.Collections) != 3 {
		t.Errorf("collections: got %v", cfg.Collections)
	}
}

func TestLoad_explicitZeroAndFalseKept(t *testing.T) {
	path := writeConfig(t, `
search:
  similarity_threshold: 0
  use_weighting: false
  backend_timeout: 250ms
metadata:
  fuzzy: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.SimilarityThreshold != 0 {
		t.Errorf("similarity_threshold = %f, want 0", cfg.Search.SimilarityThreshold)
	}
	if cfg.Search.UseWeighting {
		t.Error("use_weighting should be false")
	}
	if cfg.Metadata.Fuzzy {
		t.Error("metadata.fuzzy should be false")
	}
	if cfg.Search.BackendTimeout != 250*time.Millisecond {
		t.Errorf("backend_timeout = %v", cfg.Search.BackendTimeout)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	path := writeConfig(t, `
debug: true
server:
  host: "localhost"
  port: 8080
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/records.db"
  index_dir: "./data/indices"
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "records.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantBleve := filepath.Join(dir, "data", "indices", "bleve", "web")
	if got := cfg.Storage.BlevePath("web"); got != wantBleve {
		t.Errorf("BlevePath = %s, want %s", got, wantBleve)
	}
	if cfg.Reranker.ModelPath != "" {
		t.Errorf("empty reranker path should stay empty, got %s", cfg.Reranker.ModelPath)
	}
}

func TestLoad_invalidFailsFast(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"merge policy", "search:\n  merge_policy: avg\n", "merge_policy"},
		{"threshold", "search:\n  similarity_threshold: 1.5\n", "similarity_threshold"},
		{"collection", "collections: [email, fax]\n", "unknown collection"},
		{"recency weight", "weights:\n  recency_weight: 2\n", "recency_weight"},
		{"index type", "vector:\n  index_type: faiss\n", "index_type"},
		{"aggregate", "metadata:\n  aggregate: median\n", "aggregate"},
		{"bad yaml type", "server:\n  port: eighty\n", "parse config"},
		{"title boost", "search:\n  keyword_title_boost: 0.5\n", "keyword_title_boost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Search.TopK != 10 {
		t.Errorf("default top_k: got %d", cfg.Search.TopK)
	}
	if cfg.Search.MergePolicy != MergeSum {
		t.Errorf("default merge_policy: got %s", cfg.Search.MergePolicy)
	}
	if cfg.Metadata.Threshold != 0.8 {
		t.Errorf("default metadata threshold: got %f", cfg.Metadata.Threshold)
	}
	if cfg.Search.KeywordTitleBoost != 1.0 {
		t.Errorf("default keyword_title_boost: got %f", cfg.Search.KeywordTitleBoost)
	}
	if cfg.Weights.RerankerWeight != 1.0 {
		t.Errorf("default reranker_weight: got %f", cfg.Weights.RerankerWeight)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestWeightsWithOverrides(t *testing.T) {
	base := Default().Weights

	t.Run("override copies", func(t *testing.T) {
		got, err := base.WithOverrides(map[string]float64{"web_collection_weight": 2.5, "recency_weight": 0})
		if err != nil {
			t.Fatal(err)
		}
		if got.WebCollectionWeight != 2.5 || got.RecencyWeight != 0 {
			t.Errorf("override not applied: %+v", got)
		}
		if base.WebCollectionWeight != 1.0 {
			t.Error("base weights must not change")
		}
	})
	t.Run("unknown key", func(t *testing.T) {
		_, err := base.WithOverrides(map[string]float64{"bogus": 1})
		if err == nil {
			t.Fatal("expected error for unknown key")
		}
		if !strings.Contains(err.Error(), "recency_decay_days") {
			t.Errorf("error should list accepted keys: %v", err)
		}
	})
	t.Run("negative value", func(t *testing.T) {
		if _, err := base.WithOverrides(map[string]float64{"vector_weight": -1}); err == nil {
			t.Error("expected error for negative weight")
		}
	})
	t.Run("lookup", func(t *testing.T) {
		w, _ := base.WithOverrides(map[string]float64{"keyword_weight": 0.5, "email_collection_weight": 3})
		if w.SourceWeight("keyword") != 0.5 || w.SourceWeight("vector") != 1 {
			t.Error("source weight lookup")
		}
		if w.CollectionWeight(CollectionEmail) != 3 || w.CollectionWeight("unknown") != 1 {
			t.Error("collection weight lookup")
		}
	})
	if len(WeightKeys()) != 8 {
		t.Errorf("WeightKeys: got %v", WeightKeys())
	}
}

func TestSnapshot(t *testing.T) {
	cfg := Default()
	snap := NewSnapshot(cfg)
	if snap.Load() != cfg {
		t.Fatal("Load should return stored config")
	}

	bad := Default()
	bad.Search.MergePolicy = "avg"
	if err := snap.Store(bad); err == nil {
		t.Error("Store should reject invalid config")
	}
	if snap.Load() != cfg {
		t.Error("invalid config must not replace current one")
	}

	next := Default()
	next.Search.TopK = 7
	if err := snap.Store(next); err != nil {
		t.Fatal(err)
	}
	if snap.Load().Search.TopK != 7 {
		t.Error("Store should swap config")
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.Server.Port = 9090
	cfg.Storage.DatabasePath = "/tmp/db"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Search.BackendTimeout != cfg.Search.BackendTimeout {
		t.Errorf("duration round trip: got %v", loaded.Search.BackendTimeout)
	}
}
