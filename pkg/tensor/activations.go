package tensor

import "math"

// SiLU applies the Sigmoid Linear Unit activation function.
//
// The SiLU function (also called swish) is defined as:
//
//	SiLU(x) = x * sigmoid(x) = x / (1 + exp(-x))
//
// It is the smooth gating nonlinearity used on the gate branch of the
// SwiGLU feed-forward block.
//
// Reference: https://arxiv.org/abs/1710.05941
//
// Input: tensor of any shape
// Output: tensor of the same shape with SiLU applied element-wise
func (t *Tensor) SiLU() *Tensor {
	result := NewTensor(t.Shape)

	for i := range t.Data {
		x := t.Data[i]
		sigmoid := float32(1.0 / (1.0 + math.Exp(float64(-x))))
		result.Data[i] = x * sigmoid
	}

	return result
}

// SiLU is a standalone function that applies SiLU to a tensor.
// This is a convenience wrapper around the Tensor.SiLU method.
func SiLU(t *Tensor) *Tensor {
	return t.SiLU()
}
