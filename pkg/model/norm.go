package model

import (
	"fmt"
	"math"

	"quantumlm/pkg/tensor"
)

// rmsNormEps is the denominator stabilizer for RMSNorm.
const rmsNormEps = 1e-6

// RMSNorm implements root-mean-square normalization with a learned scale:
//
//	norm(x) = x / sqrt(mean(x²) + ε) * weight
//
// There is no mean subtraction and no bias. It is applied pre-attention,
// pre-feed-forward, and once more before the output head.
type RMSNorm struct {
	Weight *tensor.Tensor // (dim,)
	Eps    float32
}

// NewRMSNorm creates an RMSNorm layer with the scale initialized to ones.
func NewRMSNorm(dim int) *RMSNorm {
	weight := tensor.NewTensor([]int{dim})
	for i := range weight.Data {
		weight.Data[i] = 1.0
	}
	return &RMSNorm{Weight: weight, Eps: rmsNormEps}
}

// Forward normalizes each row of a (seq, dim) tensor independently.
func (n *RMSNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 2 {
		return nil, fmt.Errorf("rmsnorm: expected 2D input, got shape %v", x.Shape)
	}
	dim := x.Shape[1]
	if dim != len(n.Weight.Data) {
		return nil, fmt.Errorf("rmsnorm: input width %d, weight length %d", dim, len(n.Weight.Data))
	}

	out := tensor.NewTensor(x.Shape)
	for i := 0; i < x.Shape[0]; i++ {
		row := x.Row(i)
		orow := out.Row(i)

		var sumSq float64
		for _, v := range row {
			sumSq += float64(v) * float64(v)
		}
		inv := float32(1.0 / math.Sqrt(sumSq/float64(dim)+float64(n.Eps)))

		for j, v := range row {
			orow[j] = v * inv * n.Weight.Data[j]
		}
	}
	return out, nil
}
