//go:build !cgo
// +build !cgo

package rerank

import (
	"context"
	"errors"
)

// CrossEncoder stub type when built without CGO (see onnx.go for real implementation).
type CrossEncoder struct{}

// NewCrossEncoder returns an error when built without CGO (ONNX not available).
func NewCrossEncoder(_ string, _ int) (*CrossEncoder, error) {
	return nil, errors.New("cross-encoder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

func (c *CrossEncoder) Predict(context.Context, []Pair) ([]float64, error) {
	return nil, errors.New("cross-encoder not available")
}

func (c *CrossEncoder) Close() error { return nil }
