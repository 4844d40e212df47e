package config

import (
	"fmt"
	"sort"
	"strings"
)

// WeightsConfig holds the fusion multipliers. Collection and source weights scale
// normalized scores; RecencyWeight interpolates between ignoring and fully applying
// recency decay; RerankerWeight blends the reranker score with the fused score.
type WeightsConfig struct {
	DocumentCollectionWeight float64 `yaml:"document_collection_weight" json:"document_collection_weight"`
	EmailCollectionWeight    float64 `yaml:"email_collection_weight" json:"email_collection_weight"`
	WebCollectionWeight      float64 `yaml:"web_collection_weight" json:"web_collection_weight"`
	VectorWeight             float64 `yaml:"vector_weight" json:"vector_weight"`
	KeywordWeight            float64 `yaml:"keyword_weight" json:"keyword_weight"`
	RecencyWeight            float64 `yaml:"recency_weight" json:"recency_weight"`
	RecencyDecayDays         float64 `yaml:"recency_decay_days" json:"recency_decay_days"`
	RerankerWeight           float64 `yaml:"reranker_weight" json:"reranker_weight"`
}

// CollectionWeight returns the multiplier for a collection, or 1 for unknown names.
func (w WeightsConfig) CollectionWeight(collection string) float64 {
	switch collection {
	case CollectionDocument:
		return w.DocumentCollectionWeight
	case CollectionEmail:
		return w.EmailCollectionWeight
	case CollectionWeb:
		return w.WebCollectionWeight
	}
	return 1.0
}

// SourceWeight returns the multiplier for a backend source ("vector" or "keyword").
func (w WeightsConfig) SourceWeight(source string) float64 {
	switch source {
	case "vector":
		return w.VectorWeight
	case "keyword":
		return w.KeywordWeight
	}
	return 1.0
}

func (w *WeightsConfig) fields() map[string]*float64 {
	return map[string]*float64{
		"document_collection_weight": &w.DocumentCollectionWeight,
		"email_collection_weight":    &w.EmailCollectionWeight,
		"web_collection_weight":      &w.WebCollectionWeight,
		"vector_weight":              &w.VectorWeight,
		"keyword_weight":             &w.KeywordWeight,
		"recency_weight":             &w.RecencyWeight,
		"recency_decay_days":         &w.RecencyDecayDays,
		"reranker_weight":            &w.RerankerWeight,
	}
}

// WeightKeys returns the accepted override keys in sorted order.
func WeightKeys() []string {
	var w WeightsConfig
	keys := make([]string, 0, 8)
	for k := range w.fields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithOverrides returns a copy of w with the given keys replaced. Unknown keys and
// out-of-range values are rejected; w itself is never modified.
func (w WeightsConfig) WithOverrides(overrides map[string]float64) (WeightsConfig, error) {
	out := w
	fields := out.fields()
	for k, v := range overrides {
		p, ok := fields[k]
		if !ok {
			return w, fmt.Errorf("unknown weight %q (accepted: %s)", k, strings.Join(WeightKeys(), ", "))
		}
		*p = v
	}
	if err := out.Validate(); err != nil {
		return w, err
	}
	return out, nil
}

// Validate checks that all weights are in range.
func (w WeightsConfig) Validate() error {
	for k, p := range w.fields() {
		if *p < 0 {
			return fmt.Errorf("weight %s must be non-negative, got %g", k, *p)
		}
	}
	if w.RecencyWeight > 1 {
		return fmt.Errorf("weight recency_weight must be in [0,1], got %g", w.RecencyWeight)
	}
	if w.RerankerWeight > 1 {
		return fmt.Errorf("weight reranker_weight must be in [0,1], got %g", w.RerankerWeight)
	}
	if w.RecencyDecayDays == 0 {
		return fmt.Errorf("weight recency_decay_days must be positive")
	}
	return nil
}
