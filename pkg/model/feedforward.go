package model

import (
	"fmt"

	"quantumlm/pkg/tensor"
)

// FeedForward implements the SwiGLU feed-forward block:
//
//	FF(x) = (SiLU(x @ WGate) ⊙ (x @ WUp)) @ WDown
//
// Two parallel bias-free projections widen the input to the feed-forward
// dimension; the gate branch passes through a smooth gating nonlinearity
// and multiplies the up branch elementwise before the down projection.
// Stateless beyond its weights.
type FeedForward struct {
	WGate *tensor.Tensor // (dim, ff_dim)
	WUp   *tensor.Tensor // (dim, ff_dim)
	WDown *tensor.Tensor // (ff_dim, dim)
}

// NewFeedForward creates a feed-forward block with zero-initialized weights.
func NewFeedForward(cfg Config) *FeedForward {
	return &FeedForward{
		WGate: tensor.NewTensor([]int{cfg.Dim, cfg.FFDim}),
		WUp:   tensor.NewTensor([]int{cfg.Dim, cfg.FFDim}),
		WDown: tensor.NewTensor([]int{cfg.FFDim, cfg.Dim}),
	}
}

// Forward computes the gated transform on a (seq, dim) tensor.
func (ff *FeedForward) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 2 || x.Shape[1] != ff.WGate.Shape[0] {
		return nil, fmt.Errorf("feedforward: input shape %v, expected (seq, %d)",
			x.Shape, ff.WGate.Shape[0])
	}

	gate, err := tensor.Matmul(x, ff.WGate)
	if err != nil {
		return nil, fmt.Errorf("gate projection: %w", err)
	}

	up, err := tensor.Matmul(x, ff.WUp)
	if err != nil {
		return nil, fmt.Errorf("up projection: %w", err)
	}

	hidden, err := tensor.Mul(gate.SiLU(), up)
	if err != nil {
		return nil, fmt.Errorf("gating: %w", err)
	}

	out, err := tensor.Matmul(hidden, ff.WDown)
	if err != nil {
		return nil, fmt.Errorf("down projection: %w", err)
	}
	return out, nil
}
