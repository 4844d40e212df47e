// Package server provides the HTTP API for Kensaku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/search"
)

// Name and Description are reported by /api/info.
const (
	Name        = "kensaku"
	Description = "Hybrid retrieval over email, document and web collections"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server is the HTTP server for the Kensaku API.
type Server struct {
	engine   *search.Engine
	snapshot *config.Snapshot
	metrics  *metrics.Metrics
	limiter  *clientLimiter
	logger   *zap.Logger
	version  string
	server   *http.Server
}

// NewServer creates a server with the given dependencies. m may be nil.
func NewServer(
	engine *search.Engine,
	snapshot *config.Snapshot,
	m *metrics.Metrics,
	logger *zap.Logger,
	version string,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := snapshot.Load()
	return &Server{
		engine:   engine,
		snapshot: snapshot,
		metrics:  m,
		limiter:  newClientLimiter(cfg.Server.RateLimit, cfg.Server.Burst),
		logger:   logger,
		version:  version,
	}
}

// Handler returns the router with every route and middleware attached.
func (s *Server) Handler() http.Handler {
	cfg := s.snapshot.Load()

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	if cfg.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/query", s.handleQuery("query"))
		r.Post("/rag", s.handleQuery("rag"))
		r.Post("/metadata_search", s.handleMetadataSearch)
		r.Get("/info", s.handleInfo)
		r.Get("/status", s.handleStatus)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	cfg := s.snapshot.Load()
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr), zap.String("version", s.version))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
