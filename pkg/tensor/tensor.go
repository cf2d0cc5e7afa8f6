// Package tensor provides basic tensor operations for the inference engine.
// This is a simplified implementation focused on the needs of a decoder-only
// transformer: flat float32 storage, row-major layout, explicit shapes.
package tensor

import (
	"fmt"
	"math"
)

// Tensor represents a multi-dimensional array of float32 values.
// It stores data in a flat slice with shape information for indexing.
type Tensor struct {
	Data    []float32 // Flattened data storage
	Shape   []int     // Dimensions (e.g., [seq, dim])
	Strides []int     // Precomputed strides for indexing
}

// NewTensor creates a new tensor with the given shape, initialized to zeros.
func NewTensor(shape []int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}

	return &Tensor{
		Data:    make([]float32, size),
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}
}

// FromSlice creates a tensor from existing data with the given shape.
// The data is copied. Returns an error if data size doesn't match the shape.
func FromSlice(data []float32, shape []int) (*Tensor, error) {
	expectedSize := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
		expectedSize *= dim
	}
	if len(data) != expectedSize {
		return nil, fmt.Errorf("data size %d does not match shape %v (expected %d elements)",
			len(data), shape, expectedSize)
	}

	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	return &Tensor{
		Data:    dataCopy,
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}, nil
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	c := NewTensor(t.Shape)
	copy(c.Data, t.Data)
	return c
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	return len(t.Data)
}

// NumDims returns the number of dimensions.
func (t *Tensor) NumDims() int {
	return len(t.Shape)
}

// FlatIndex converts multi-dimensional indices to a flat index.
func (t *Tensor) FlatIndex(indices []int) int {
	idx := 0
	for i, ind := range indices {
		idx += ind * t.Strides[i]
	}
	return idx
}

// Get returns the value at the given multi-dimensional indices.
func (t *Tensor) Get(indices []int) float32 {
	return t.Data[t.FlatIndex(indices)]
}

// Set assigns a value at the given multi-dimensional indices.
func (t *Tensor) Set(indices []int, value float32) {
	t.Data[t.FlatIndex(indices)] = value
}

// Row returns the i-th row of a 2D tensor as a slice sharing the underlying
// storage. Mutating the returned slice mutates the tensor.
func (t *Tensor) Row(i int) []float32 {
	if len(t.Shape) != 2 {
		panic(fmt.Sprintf("Row requires a 2D tensor, got shape %v", t.Shape))
	}
	cols := t.Shape[1]
	return t.Data[i*cols : (i+1)*cols]
}

// ShapeEquals reports whether two tensors have identical shapes.
func (t *Tensor) ShapeEquals(other *Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// Equals reports whether two tensors are elementwise equal within tolerance.
func (t *Tensor) Equals(other *Tensor, tolerance float32) bool {
	if !t.ShapeEquals(other) {
		return false
	}
	for i := range t.Data {
		diff := t.Data[i] - other.Data[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			return false
		}
	}
	return true
}

// Matmul computes the matrix product of two 2D tensors.
// a: (m, k), b: (k, n) -> (m, n)
func Matmul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("matmul requires 2D tensors, got %v and %v", a.Shape, b.Shape)
	}
	m, k := a.Shape[0], a.Shape[1]
	k2, n := b.Shape[0], b.Shape[1]
	if k != k2 {
		return nil, fmt.Errorf("matmul shape mismatch: (%d,%d) x (%d,%d)", m, k, k2, n)
	}

	out := NewTensor([]int{m, n})
	for i := 0; i < m; i++ {
		arow := a.Data[i*k : (i+1)*k]
		orow := out.Data[i*n : (i+1)*n]
		for kk := 0; kk < k; kk++ {
			av := arow[kk]
			brow := b.Data[kk*n : (kk+1)*n]
			for j := 0; j < n; j++ {
				orow[j] += av * brow[j]
			}
		}
	}
	return out, nil
}

// MatmulTransposed computes a @ bᵀ without materializing the transpose.
// a: (m, k), b: (n, k) -> (m, n). Used for the tied output head, where the
// embedding table (vocab, dim) doubles as the projection (dim, vocab).
func MatmulTransposed(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("matmul requires 2D tensors, got %v and %v", a.Shape, b.Shape)
	}
	m, k := a.Shape[0], a.Shape[1]
	n, k2 := b.Shape[0], b.Shape[1]
	if k != k2 {
		return nil, fmt.Errorf("matmul shape mismatch: (%d,%d) x (%d,%d)T", m, k, n, k2)
	}

	out := NewTensor([]int{m, n})
	for i := 0; i < m; i++ {
		arow := a.Data[i*k : (i+1)*k]
		orow := out.Data[i*n : (i+1)*n]
		for j := 0; j < n; j++ {
			brow := b.Data[j*k : (j+1)*k]
			var sum float32
			for kk := 0; kk < k; kk++ {
				sum += arow[kk] * brow[kk]
			}
			orow[j] = sum
		}
	}
	return out, nil
}

// Add computes the elementwise sum of two tensors of identical shape.
func Add(a, b *Tensor) (*Tensor, error) {
	if !a.ShapeEquals(b) {
		return nil, fmt.Errorf("add shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	out := NewTensor(a.Shape)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out, nil
}

// Mul computes the elementwise product of two tensors of identical shape.
func Mul(a, b *Tensor) (*Tensor, error) {
	if !a.ShapeEquals(b) {
		return nil, fmt.Errorf("mul shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	out := NewTensor(a.Shape)
	for i := range a.Data {
		out.Data[i] = a.Data[i] * b.Data[i]
	}
	return out, nil
}

// Scale returns a new tensor with every element multiplied by s.
func (t *Tensor) Scale(s float32) *Tensor {
	out := NewTensor(t.Shape)
	for i := range t.Data {
		out.Data[i] = t.Data[i] * s
	}
	return out
}

// SoftmaxInPlace applies a numerically stable softmax to a flat slice.
// Entries equal to -Inf receive probability zero.
func SoftmaxInPlace(v []float32) {
	maxVal := float32(math.Inf(-1))
	for _, x := range v {
		if x > maxVal {
			maxVal = x
		}
	}
	// Every entry masked: exp(-Inf - (-Inf)) is NaN, so zero-fill instead.
	if math.IsInf(float64(maxVal), -1) {
		for i := range v {
			v[i] = 0
		}
		return
	}

	var sum float32
	for i, x := range v {
		e := float32(math.Exp(float64(x - maxVal)))
		v[i] = e
		sum += e
	}
	if sum == 0 {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}

// ShapeString returns a human-readable shape description.
func (t *Tensor) ShapeString() string {
	return fmt.Sprintf("%v", t.Shape)
}

func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func copyShape(shape []int) []int {
	c := make([]int, len(shape))
	copy(c, shape)
	return c
}
