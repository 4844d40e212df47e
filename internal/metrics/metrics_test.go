package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/api/items/{id}", "418"))
	assert.Equal(t, 2.0, got)
}

func TestRecorders(t *testing.T) {
	m := New()
	m.RecordQuery("query", "combined", 3)
	m.RecordQuery("query", "", 0)
	m.RecordBackendFailure("email", "vector")
	m.RecordRerank("degraded")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.queriesTotal.WithLabelValues("query", "combined")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queriesTotal.WithLabelValues("query", "unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendFailures.WithLabelValues("email", "vector")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rerankOutcomes.WithLabelValues("degraded")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "kensaku_rerank_outcomes_total"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordQuery("query", "keyword", 1)
	m.RecordBackendFailure("web", "keyword")
	m.RecordRerank("applied")

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
