package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/backend"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

type downAdapter struct{ source models.Source }

func (d downAdapter) Source() models.Source { return d.source }

func (d downAdapter) Search(_ context.Context, q backend.Query) ([]models.Candidate, error) {
	return nil, &models.BackendError{Collection: q.Collection, Source: d.source, Err: errors.New("connection refused")}
}

type testEnv struct {
	srv      *Server
	handler  http.Handler
	snapshot *config.Snapshot
	metrics  *metrics.Metrics
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "records.db")
	cfg.Storage.IndexDir = filepath.Join(dir, "indices")
	cfg.Embedding.Dimensions = 64
	cfg.Search.SimilarityThreshold = 0.05
	cfg.Server.RateLimit = 1000
	cfg.Server.Burst = 1000
	return cfg
}

func newTestEnv(t *testing.T, cfg *config.Config, adapters ...backend.Adapter) *testEnv {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	records := []*models.Record{
		{ID: "m1", Collection: "email", DocID: "m1", Content: "quarterly budget review meeting", Metadata: map[string]interface{}{"subject": "Budget", "from": "ana@example.com"}},
		{ID: "d1", Collection: "document", DocID: "d1", Content: "annual budget report for the board", Metadata: map[string]interface{}{"title": "Budget report"}},
		{ID: "w1", Collection: "web", DocID: "w1", Content: "how to plan a household budget", Metadata: map[string]interface{}{"source_url": "https://example.com/page"}},
	}
	if err := store.PutRecords(ctx, records); err != nil {
		t.Fatal(err)
	}

	emb := embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
	kwIdx := map[string]keyword.KeywordIndex{}
	vecIdx := map[string]vector.VectorIndex{}
	for _, c := range cfg.Collections {
		ki, err := keyword.NewBleveIndex("")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { ki.Close() })
		vi, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
		if err != nil {
			t.Fatal(err)
		}
		kwIdx[c], vecIdx[c] = ki, vi
	}
	for _, r := range records {
		if err := kwIdx[r.Collection].Index(ctx, r); err != nil {
			t.Fatal(err)
		}
		v, _ := emb.Embed(ctx, r.Content)
		if err := vecIdx[r.Collection].Add(ctx, []string{r.ID}, [][]float32{v}); err != nil {
			t.Fatal(err)
		}
	}

	if len(adapters) == 0 {
		adapters = []backend.Adapter{
			backend.NewVectorAdapter(emb, vecIdx, store),
			backend.NewKeywordAdapter(kwIdx, store, cfg.Search.Fuzziness),
		}
	}
	set := backend.NewSet(adapters...)
	set.Keyword, set.Vector = kwIdx, vecIdx

	m := metrics.New()
	snap := config.NewSnapshot(cfg)
	engine := search.NewEngine(set, store, nil, m, zap.NewNop())
	srv := NewServer(engine, snap, m, zap.NewNop(), "test")
	return &testEnv{srv: srv, handler: srv.Handler(), snapshot: snap, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	r := httptest.NewRequest(method, path, rd)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decodeSearch(t *testing.T, w *httptest.ResponseRecorder) models.SearchResponse {
	t.Helper()
	var out models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestHandleQuery(t *testing.T) {
	env := newTestEnv(t, testConfig(t.TempDir()))

	for _, path := range []string{"/api/query", "/api/rag"} {
		w := env.do(t, http.MethodPost, path, map[string]interface{}{"query": "budget", "top_k": 2})
		if w.Code != http.StatusOK {
			t.Fatalf("%s status: got %d, body: %s", path, w.Code, w.Body.String())
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing X-Request-ID", path)
		}
		out := decodeSearch(t, w)
		if out.Query != "budget" {
			t.Errorf("query: got %q", out.Query)
		}
		if len(out.Results) != 2 {
			t.Fatalf("%s results: got %d, want 2", path, len(out.Results))
		}
		if out.Results[0].Score < out.Results[1].Score {
			t.Errorf("results not sorted: %v", out.Results)
		}
		if out.Reranked != "disabled" {
			t.Errorf("reranked: got %q", out.Reranked)
		}
	}
}

func TestHandleQuery_CollectionFilter(t *testing.T) {
	env := newTestEnv(t, testConfig(t.TempDir()))

	w := env.do(t, http.MethodPost, "/api/query", map[string]interface{}{"query": "budget", "collection_filter": "emails"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	out := decodeSearch(t, w)
	if len(out.Results) != 1 || out.Results[0].Collection != "email" {
		t.Errorf("results: got %+v", out.Results)
	}
}

func TestHandleQuery_InvalidRequest(t *testing.T) {
	env := newTestEnv(t, testConfig(t.TempDir()))

	tests := []struct {
		name string
		body interface{}
		want string
	}{
		{"malformed json", "{", "invalid request body"},
		{"empty query", map[string]interface{}{"query": ""}, "query"},
		{"zero top_k", map[string]interface{}{"query": "x", "top_k": 0}, "top_k"},
		{"unknown collection", map[string]interface{}{"query": "x", "collection_filter": "fax"}, "collection_filter"},
		{"bad mode", map[string]interface{}{"query": "x", "mode": "hybrid"}, "mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/query", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body %q should mention %q", w.Body.String(), tt.want)
			}
		})
	}
}

func TestHandleQuery_AllBackendsFailed(t *testing.T) {
	env := newTestEnv(t, testConfig(t.TempDir()),
		downAdapter{models.SourceVector}, downAdapter{models.SourceKeyword})

	w := env.do(t, http.MethodPost, "/api/query", map[string]interface{}{"query": "x"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if raw["query"] != "x" {
		t.Errorf("query: got %v", raw["query"])
	}
	results, ok := raw["results"].([]interface{})
	if !ok || len(results) != 0 {
		t.Errorf("results should be an empty array, got %v", raw["results"])
	}
	if raw["note"] != search.NoteAllBackendsFailed {
		t.Errorf("note: got %v", raw["note"])
	}
}

func TestHandleMetadataSearch(t *testing.T) {
	env := newTestEnv(t, testConfig(t.TempDir()))

	w := env.do(t, http.MethodPost, "/api/metadata_search", map[string]interface{}{
		"metadata":          map[string]string{"source_url": "https://example.com/page"},
		"metadata_fuzzy":    true,
		"collection_filter": "web",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	out := decodeSearch(t, w)
	if out.Query != "" {
		t.Errorf("query: got %q, want empty", out.Query)
	}
	if len(out.Results) != 1 || out.Results[0].DocID != "w1" {
		t.Fatalf("results: got %+v", out.Results)
	}
	if out.Results[0].SearchProvider != "metadata" {
		t.Errorf("provider: got %q", out.Results[0].SearchProvider)
	}

	w = env.do(t, http.MethodPost, "/api/metadata_search", map[string]interface{}{"metadata": map[string]string{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty metadata: got %d, want 400", w.Code)
	}
}

func TestHandleInfo(t *testing.T) {
	env := newTestEnv(t, testConfig(t.TempDir()))

	w := env.do(t, http.MethodGet, "/api/info", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Name        string             `json:"name"`
		Version     string             `json:"version"`
		Models      map[string]string  `json:"models"`
		Collections []string           `json:"collections"`
		Weights     map[string]float64 `json:"weights"`
		Search      map[string]interface{}
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Name != Name || out.Version != "test" {
		t.Errorf("name/version: got %q %q", out.Name, out.Version)
	}
	if out.Models["embedding"] == "" {
		t.Error("missing embedding model name")
	}
	if out.Models["reranking"] != "" {
		t.Errorf("reranking should be empty without a model, got %q", out.Models["reranking"])
	}
	if len(out.Collections) != 3 {
		t.Errorf("collections: got %v", out.Collections)
	}
	if out.Weights["email_collection_weight"] != 1 {
		t.Errorf("weights: got %v", out.Weights)
	}
	if out.Search["merge_policy"] != "sum" {
		t.Errorf("search: got %v", out.Search)
	}
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t, testConfig(t.TempDir()))

	w := env.do(t, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out models.StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	email := out.Collections["email"]
	if email.Records != 1 || email.KeywordDocs != 1 || email.Vectors != 1 {
		t.Errorf("email status: got %+v", email)
	}
	if out.Reranker != "unloaded" {
		t.Errorf("reranker: got %q", out.Reranker)
	}
	if out.DiskUsageBytes == nil || *out.DiskUsageBytes < 1 {
		t.Errorf("disk_usage_bytes: got %v", out.DiskUsageBytes)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, testConfig(t.TempDir()))

	if w := env.do(t, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health: got %d", w.Code)
	}
	env.do(t, http.MethodPost, "/api/query", map[string]interface{}{"query": "budget"})

	w := env.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`kensaku_search_queries_total{endpoint="query",mode="combined"} 1`,
		`kensaku_http_requests_total{method="POST"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Server.RateLimit = 0.001
	cfg.Server.Burst = 1
	env := newTestEnv(t, cfg)

	if w := env.do(t, http.MethodGet, "/api/info", nil); w.Code != http.StatusOK {
		t.Fatalf("first request: got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/info", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d, want 429", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("health should not be rate limited, got %d", w.Code)
	}
}

func TestSnapshotReadPerRequest(t *testing.T) {
	cfg := testConfig(t.TempDir())
	env := newTestEnv(t, cfg)

	next := *cfg
	next.Search.TopK = 1
	if err := env.snapshot.Store(&next); err != nil {
		t.Fatal(err)
	}
	out := decodeSearch(t, env.do(t, http.MethodPost, "/api/query", map[string]interface{}{"query": "budget"}))
	if len(out.Results) != 1 {
		t.Errorf("default top_k from new snapshot not applied: got %d results", len(out.Results))
	}
}

func TestClientLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	l := newClientLimiter(1, 2)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("a") {
		t.Error("third request in the same instant should be denied")
	}
	if !l.Allow("b") {
		t.Error("clients have separate buckets")
	}
	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Error("bucket should refill after a second")
	}

	now = now.Add(2 * limiterIdle)
	l.Allow("c")
	if _, ok := l.clients["a"]; ok {
		t.Error("idle client should be swept")
	}

	if !newClientLimiter(0, 0).Allow("x") {
		t.Error("zero rate disables limiting")
	}
}
