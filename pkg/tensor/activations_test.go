package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSiLU(t *testing.T) {
	input, _ := FromSlice([]float32{-2, -1, 0, 1, 2}, []int{5})
	out := input.SiLU()

	// SiLU(0) = 0
	assert.Zero(t, out.Data[2])

	// SiLU(x) = x * sigmoid(x), checked against direct evaluation
	for i, x := range input.Data {
		want := float64(x) / (1.0 + math.Exp(float64(-x)))
		assert.InDelta(t, want, float64(out.Data[i]), 1e-5)
	}

	// Input must be untouched
	assert.Equal(t, float32(-2), input.Data[0])
}

func TestSiLU_LargeInputs(t *testing.T) {
	input, _ := FromSlice([]float32{-100, 100}, []int{2})
	out := input.SiLU()

	// Saturates to 0 for large negative, identity for large positive
	assert.InDelta(t, 0.0, float64(out.Data[0]), 1e-5)
	assert.InDelta(t, 100.0, float64(out.Data[1]), 1e-3)
}
