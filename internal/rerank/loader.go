package rerank

import (
	"github.com/hyperjump/kensaku/internal/config"
)

// LoaderFor returns the loader for the configured cross-encoder, or nil when
// no model path is set.
func LoaderFor(cfg config.RerankerConfig) Loader {
	if cfg.ModelPath == "" {
		return nil
	}
	return func() (Model, error) {
		m, err := NewCrossEncoder(cfg.ModelPath, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}
