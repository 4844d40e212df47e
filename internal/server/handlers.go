package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/models"
)

func (s *Server) handleQuery(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.SearchRequest
		if !s.decode(w, r, &req) {
			return
		}
		cfg := s.snapshot.Load()
		params, err := req.Resolve(cfg)
		if err != nil {
			s.fail(w, err)
			return
		}
		s.logger.Debug("search request",
			zap.String("endpoint", endpoint),
			zap.String("query", params.Query),
			zap.String("mode", string(params.Mode)),
			zap.Int("top_k", params.TopK))

		resp, err := s.engine.Search(r.Context(), cfg, params)
		if err != nil {
			s.fail(w, err)
			return
		}
		s.metrics.RecordQuery(endpoint, string(params.Mode), len(resp.Results))
		s.respondJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleMetadataSearch(w http.ResponseWriter, r *http.Request) {
	var req models.MetadataSearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	cfg := s.snapshot.Load()
	params, err := req.Resolve(cfg)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Debug("metadata search request",
		zap.Int("fields", len(params.Fields)),
		zap.String("query", params.Query),
		zap.Bool("fuzzy", params.Fuzzy),
		zap.Float64("threshold", params.Threshold))

	resp, err := s.engine.MetadataSearch(r.Context(), cfg, params)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.metrics.RecordQuery("metadata_search", "metadata", len(resp.Results))
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.snapshot.Load()
	reranking := ""
	if rr := s.engine.Reranker(); rr.Enabled() {
		reranking = cfg.Reranker.ModelName
	}
	s.respondJSON(w, http.StatusOK, models.InfoResponse{
		Name:        Name,
		Version:     s.version,
		Description: Description,
		Models: map[string]string{
			"embedding": cfg.Embedding.ModelName,
			"reranking": reranking,
		},
		Collections: cfg.Collections,
		Weights:     cfg.Weights,
		Search: map[string]interface{}{
			"mode":          cfg.Search.Mode,
			"top_k":         cfg.Search.TopK,
			"threshold":     cfg.Search.SimilarityThreshold,
			"merge_policy":  cfg.Search.MergePolicy,
			"use_weighting": cfg.Search.UseWeighting,
			"use_reranking": cfg.Search.UseReranking,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Status(r.Context(), s.snapshot.Load())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// fail maps err onto a status code: invalid requests are 400, anything else 500.
func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrInvalidRequest) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode response failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
