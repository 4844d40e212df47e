//go:build cgo
// +build cgo

package rerank

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/kensaku/internal/embedding"
)

// CrossEncoder runs a BERT-style cross-encoder exported to ONNX with a single
// relevance logit output. Inference is serialized on the shared tensors.
type CrossEncoder struct {
	session   *ort.AdvancedSession
	maxTokens int
	tokenizer embedding.Tokenizer

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	logits        *ort.Tensor[float32]
	mu            sync.Mutex
}

// NewCrossEncoder loads the model at modelPath.
func NewCrossEncoder(modelPath string, maxTokens int) (*CrossEncoder, error) {
	if err := embedding.InitRuntime(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	c := &CrossEncoder{maxTokens: maxTokens, tokenizer: &embedding.SimpleTokenizer{}}
	ids, mask, types := c.tokenizer.TokenizePair("", "", maxTokens)
	shape := ort.NewShape(1, int64(maxTokens))

	var err error
	if c.inputIDs, err = ort.NewTensor(shape, ids); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if c.attentionMask, err = ort.NewTensor(shape, mask); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if c.tokenTypeIDs, err = ort.NewTensor(shape, types); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if c.logits, err = ort.NewTensor(ort.NewShape(1, 1), make([]float32, 1)); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create logits tensor: %w", err)
	}
	c.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"logits"},
		[]ort.ArbitraryTensor{c.inputIDs, c.attentionMask, c.tokenTypeIDs},
		[]ort.ArbitraryTensor{c.logits},
		nil,
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return c, nil
}

// Predict returns one logit per pair.
func (c *CrossEncoder) Predict(ctx context.Context, pairs []Pair) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	scores := make([]float64, len(pairs))
	for i, p := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, mask, types := c.tokenizer.TokenizePair(p.Query, p.Passage, c.maxTokens)
		copy(c.inputIDs.GetData(), ids)
		copy(c.attentionMask.GetData(), mask)
		copy(c.tokenTypeIDs.GetData(), types)
		if err := c.session.Run(); err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		scores[i] = float64(c.logits.GetData()[0])
	}
	return scores, nil
}

// Close destroys the session and tensors.
func (c *CrossEncoder) Close() error {
	var err error
	if c.session != nil {
		err = c.session.Destroy()
		c.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{c.inputIDs, c.attentionMask, c.tokenTypeIDs} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	c.inputIDs, c.attentionMask, c.tokenTypeIDs = nil, nil, nil
	if c.logits != nil {
		_ = c.logits.Destroy()
		c.logits = nil
	}
	return err
}
