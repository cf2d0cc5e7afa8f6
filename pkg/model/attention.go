package model

import (
	"fmt"
	"math"

	"quantumlm/pkg/tensor"
)

// Attention implements causal multi-head self-attention with rotary position
// embeddings. All four projections (query, key, value, output) are bias-free
// square matrices of the model width.
//
// Invariant: the output at position i is a function only of inputs at
// positions <= i. The causal mask is applied to the raw scores, before the
// softmax, so masked positions carry exactly zero probability mass.
type Attention struct {
	NumHeads int
	HeadDim  int
	Dim      int

	WQ *tensor.Tensor // (dim, dim)
	WK *tensor.Tensor // (dim, dim)
	WV *tensor.Tensor // (dim, dim)
	WO *tensor.Tensor // (dim, dim)

	rope *RoPE
}

// NewAttention creates an attention layer sharing the model's rotary tables.
func NewAttention(cfg Config, rope *RoPE) *Attention {
	return &Attention{
		NumHeads: cfg.NumHeads,
		HeadDim:  cfg.HeadDim(),
		Dim:      cfg.Dim,
		WQ:       tensor.NewTensor([]int{cfg.Dim, cfg.Dim}),
		WK:       tensor.NewTensor([]int{cfg.Dim, cfg.Dim}),
		WV:       tensor.NewTensor([]int{cfg.Dim, cfg.Dim}),
		WO:       tensor.NewTensor([]int{cfg.Dim, cfg.Dim}),
		rope:     rope,
	}
}

// Forward computes attention over a (seq, dim) tensor of hidden states.
//
// With a nil cache, x covers the whole (windowed) sequence starting at
// position 0. With a cache, x holds only the positions following the cached
// ones: new keys and values are rotated at their absolute positions,
// appended, and every query attends over the full cached history.
func (a *Attention) Forward(x *tensor.Tensor, cache *LayerCache) (*tensor.Tensor, error) {
	if len(x.Shape) != 2 || x.Shape[1] != a.Dim {
		return nil, fmt.Errorf("attention: input shape %v, expected (seq, %d)", x.Shape, a.Dim)
	}
	seqLen := x.Shape[0]

	offset := 0
	if cache != nil {
		offset = cache.Len()
	}
	a.rope.Grow(offset + seqLen)

	q, err := tensor.Matmul(x, a.WQ)
	if err != nil {
		return nil, fmt.Errorf("query projection: %w", err)
	}
	k, err := tensor.Matmul(x, a.WK)
	if err != nil {
		return nil, fmt.Errorf("key projection: %w", err)
	}
	v, err := tensor.Matmul(x, a.WV)
	if err != nil {
		return nil, fmt.Errorf("value projection: %w", err)
	}

	// Rotate queries and keys per head at their absolute positions.
	for t := 0; t < seqLen; t++ {
		pos := offset + t
		qrow := q.Row(t)
		krow := k.Row(t)
		for h := 0; h < a.NumHeads; h++ {
			a.rope.Rotate(qrow[h*a.HeadDim:(h+1)*a.HeadDim], pos)
			a.rope.Rotate(krow[h*a.HeadDim:(h+1)*a.HeadDim], pos)
		}
	}

	// keyRow/valueRow read either the cache or the freshly computed rows.
	keyRow := k.Row
	valueRow := v.Row
	total := seqLen
	if cache != nil {
		for t := 0; t < seqLen; t++ {
			if err := cache.Append(k.Row(t), v.Row(t)); err != nil {
				return nil, err
			}
		}
		keyRow = cache.Key
		valueRow = cache.Value
		total = cache.Len()
	}

	out := tensor.NewTensor([]int{seqLen, a.Dim})
	scale := float32(1.0 / math.Sqrt(float64(a.HeadDim)))
	negInf := float32(math.Inf(-1))
	scores := make([]float32, total)

	for h := 0; h < a.NumHeads; h++ {
		lo, hi := h*a.HeadDim, (h+1)*a.HeadDim
		for t := 0; t < seqLen; t++ {
			qh := q.Row(t)[lo:hi]
			limit := offset + t // causal horizon for this query

			for j := 0; j < total; j++ {
				if j > limit {
					scores[j] = negInf
					continue
				}
				kh := keyRow(j)[lo:hi]
				var dot float32
				for d := 0; d < a.HeadDim; d++ {
					dot += qh[d] * kh[d]
				}
				scores[j] = dot * scale
			}

			tensor.SoftmaxInPlace(scores)

			orow := out.Row(t)[lo:hi]
			for j := 0; j <= limit && j < total; j++ {
				w := scores[j]
				if w == 0 {
					continue
				}
				vh := valueRow(j)[lo:hi]
				for d := 0; d < a.HeadDim; d++ {
					orow[d] += w * vh[d]
				}
			}
		}
	}

	merged, err := tensor.Matmul(out, a.WO)
	if err != nil {
		return nil, fmt.Errorf("output projection: %w", err)
	}
	return merged, nil
}
