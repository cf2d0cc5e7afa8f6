package model

import (
	"fmt"

	"quantumlm/pkg/tensor"
)

// Block is one transformer layer in pre-norm residual style:
//
//	x = x + Attention(Norm(x))
//	x = x + FeedForward(Norm(x))
//
// All layers are structurally identical and share no weights.
type Block struct {
	AttnNorm *RMSNorm
	Attn     *Attention
	FFNorm   *RMSNorm
	FF       *FeedForward
}

// NewBlock creates a transformer block for the given configuration.
func NewBlock(cfg Config, rope *RoPE) *Block {
	return &Block{
		AttnNorm: NewRMSNorm(cfg.Dim),
		Attn:     NewAttention(cfg, rope),
		FFNorm:   NewRMSNorm(cfg.Dim),
		FF:       NewFeedForward(cfg),
	}
}

// Forward applies the block to a (seq, dim) tensor.
func (b *Block) Forward(x *tensor.Tensor, cache *LayerCache) (*tensor.Tensor, error) {
	normed, err := b.AttnNorm.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("attention norm: %w", err)
	}
	attnOut, err := b.Attn.Forward(normed, cache)
	if err != nil {
		return nil, err
	}
	x, err = tensor.Add(x, attnOut)
	if err != nil {
		return nil, fmt.Errorf("attention residual: %w", err)
	}

	normed, err = b.FFNorm.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("feed-forward norm: %w", err)
	}
	ffOut, err := b.FF.Forward(normed)
	if err != nil {
		return nil, err
	}
	x, err = tensor.Add(x, ffOut)
	if err != nil {
		return nil, fmt.Errorf("feed-forward residual: %w", err)
	}
	return x, nil
}
