package models

import (
	"strings"

	"github.com/hyperjump/kensaku/internal/config"
)

// Mode selects which backends a search uses.
type Mode string

const (
	ModeCombined Mode = "combined"
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
)

// Sources returns the backends queried in this mode.
func (m Mode) Sources() []Source {
	switch m {
	case ModeSemantic:
		return []Source{SourceVector}
	case ModeKeyword:
		return []Source{SourceKeyword}
	default:
		return []Source{SourceVector, SourceKeyword}
	}
}

// SearchRequest is the body of /api/query and /api/rag. Pointer fields are optional
// and fall back to configuration defaults.
type SearchRequest struct {
	Query               string             `json:"query"`
	Mode                Mode               `json:"mode,omitempty"`
	Fuzzy               *bool              `json:"fuzzy,omitempty"`
	SimilarityThreshold *float64           `json:"similarity_threshold,omitempty"`
	UseReranking        *bool              `json:"use_reranking,omitempty"`
	TopK                *int               `json:"top_k,omitempty"`
	CollectionFilter    string             `json:"collection_filter,omitempty"`
	Weights             map[string]float64 `json:"weights,omitempty"`
}

// SearchParams is a validated SearchRequest with every default resolved.
type SearchParams struct {
	Query        string
	Mode         Mode
	Fuzzy        bool
	Threshold    float64
	UseReranking bool
	UseWeighting bool
	TopK         int
	Collections  []string
	Weights      config.WeightsConfig
}

// Resolve validates r against cfg and returns the effective parameters.
func (r *SearchRequest) Resolve(cfg *config.Config) (SearchParams, error) {
	p := SearchParams{
		Query:        strings.TrimSpace(r.Query),
		Mode:         r.Mode,
		Fuzzy:        cfg.Search.Fuzzy,
		Threshold:    cfg.Search.SimilarityThreshold,
		UseReranking: cfg.Search.UseReranking,
		UseWeighting: cfg.Search.UseWeighting,
		TopK:         cfg.Search.TopK,
	}
	if p.Query == "" {
		return p, InvalidField("query", "must not be empty")
	}
	if p.Mode == "" {
		p.Mode = Mode(cfg.Search.Mode)
	}
	switch p.Mode {
	case ModeCombined, ModeSemantic, ModeKeyword:
	default:
		return p, InvalidField("mode", "%q is not one of combined, semantic, keyword", r.Mode)
	}
	if r.Fuzzy != nil {
		p.Fuzzy = *r.Fuzzy
	}
	if r.SimilarityThreshold != nil {
		p.Threshold = *r.SimilarityThreshold
		if p.Threshold < 0 || p.Threshold > 1 {
			return p, InvalidField("similarity_threshold", "%g is outside [0,1]", p.Threshold)
		}
	}
	if r.UseReranking != nil {
		p.UseReranking = *r.UseReranking
	}
	topK, err := resolveTopK(r.TopK, p.TopK, cfg.Search.MaxTopK)
	if err != nil {
		return p, err
	}
	p.TopK = topK

	p.Collections, err = ParseCollectionFilter(r.CollectionFilter, cfg.Collections)
	if err != nil {
		return p, err
	}
	p.Weights, err = cfg.Weights.WithOverrides(r.Weights)
	if err != nil {
		return p, InvalidField("weights", "%v", err)
	}
	return p, nil
}

// MetadataSearchRequest is the body of /api/metadata_search.
type MetadataSearchRequest struct {
	Metadata          map[string]interface{} `json:"metadata"`
	Query             string                 `json:"query,omitempty"`
	TopK              *int                   `json:"top_k,omitempty"`
	MetadataFuzzy     *bool                  `json:"metadata_fuzzy,omitempty"`
	MetadataThreshold *float64               `json:"metadata_threshold,omitempty"`
	CollectionFilter  string                 `json:"collection_filter,omitempty"`
}

// MetadataParams is a validated MetadataSearchRequest.
type MetadataParams struct {
	Fields      map[string]string
	Query       string
	TopK        int
	Fuzzy       bool
	Threshold   float64
	Aggregate   string
	Collections []string
}

// Resolve validates r against cfg and returns the effective parameters.
func (r *MetadataSearchRequest) Resolve(cfg *config.Config) (MetadataParams, error) {
	p := MetadataParams{
		Query:     strings.TrimSpace(r.Query),
		Fuzzy:     cfg.Metadata.Fuzzy,
		Threshold: cfg.Metadata.Threshold,
		Aggregate: cfg.Metadata.Aggregate,
		Fields:    make(map[string]string, len(r.Metadata)),
	}
	for k, v := range r.Metadata {
		key := strings.ToLower(strings.TrimSpace(k))
		val := strings.TrimSpace(ValueString(v))
		if key == "" || val == "" {
			continue
		}
		if _, dup := p.Fields[key]; dup {
			return p, InvalidField("metadata", "field %q given more than once", key)
		}
		p.Fields[key] = val
	}
	if len(p.Fields) == 0 {
		return p, InvalidField("metadata", "at least one field with a value is required")
	}
	if r.MetadataFuzzy != nil {
		p.Fuzzy = *r.MetadataFuzzy
	}
	if r.MetadataThreshold != nil {
		p.Threshold = *r.MetadataThreshold
		if p.Threshold < 0 || p.Threshold > 1 {
			return p, InvalidField("metadata_threshold", "%g is outside [0,1]", p.Threshold)
		}
	}
	topK, err := resolveTopK(r.TopK, cfg.Metadata.TopK, cfg.Search.MaxTopK)
	if err != nil {
		return p, err
	}
	p.TopK = topK
	p.Collections, err = ParseCollectionFilter(r.CollectionFilter, cfg.Collections)
	if err != nil {
		return p, err
	}
	return p, nil
}

func resolveTopK(requested *int, def, max int) (int, error) {
	if requested == nil {
		return def, nil
	}
	k := *requested
	if k <= 0 {
		return 0, InvalidField("top_k", "must be positive, got %d", k)
	}
	if max > 0 && k > max {
		return 0, InvalidField("top_k", "%d exceeds the maximum of %d", k, max)
	}
	return k, nil
}

var collectionAliases = map[string]string{
	"email":     config.CollectionEmail,
	"emails":    config.CollectionEmail,
	"document":  config.CollectionDocument,
	"documents": config.CollectionDocument,
	"web":       config.CollectionWeb,
}

// ParseCollectionFilter maps a collection_filter value to collection names. "" and
// "all" select every enabled collection; otherwise a comma-separated list of names or
// plural aliases selects exactly those collections.
func ParseCollectionFilter(filter string, enabled []string) ([]string, error) {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" || filter == "all" {
		return append([]string(nil), enabled...), nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(filter, ",") {
		part = strings.TrimSpace(part)
		name, ok := collectionAliases[part]
		if !ok {
			return nil, InvalidField("collection_filter", "unknown collection %q", part)
		}
		if !contains(enabled, name) {
			return nil, InvalidField("collection_filter", "collection %q is not enabled", part)
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
