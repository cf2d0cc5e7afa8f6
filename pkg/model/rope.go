package model

import (
	"fmt"
	"math"
)

// ropeThetaBase is the base of the rotary frequency schedule.
const ropeThetaBase = 10000.0

// RoPE holds precomputed cosine and sine tables for rotary position
// embeddings in the "split-halves" style: the head dimension is divided
// into two halves rotated against each other, and each angle is duplicated
// across both halves of the table row.
//
// The tables grow monotonically: requesting a length beyond the cached one
// rebuilds them larger, never smaller, so slices handed out earlier stay
// valid.
type RoPE struct {
	headDim int
	maxLen  int
	cos     []float32 // (maxLen, headDim)
	sin     []float32 // (maxLen, headDim)
}

// NewRoPE precomputes rotation tables for the given head dimension.
// headDim must be even and positive; violations are construction-time
// failures.
func NewRoPE(headDim, initialLen int) (*RoPE, error) {
	if headDim <= 0 {
		return nil, fmt.Errorf("%w: head dimension %d not positive", ErrInvalidConfig, headDim)
	}
	if headDim%2 != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrOddHeadDim, headDim)
	}
	if initialLen <= 0 {
		return nil, fmt.Errorf("%w: rope length %d not positive", ErrInvalidConfig, initialLen)
	}

	r := &RoPE{headDim: headDim}
	r.rebuild(initialLen)
	return r, nil
}

// MaxLen returns the currently cached table length.
func (r *RoPE) MaxLen() int {
	return r.maxLen
}

// HeadDim returns the head dimension the tables were built for.
func (r *RoPE) HeadDim() int {
	return r.headDim
}

// Grow extends the cached tables to cover at least length positions.
// Shrinking never happens; a request within the cache is a no-op.
func (r *RoPE) Grow(length int) {
	if length <= r.maxLen {
		return
	}
	r.rebuild(length)
}

func (r *RoPE) rebuild(length int) {
	half := r.headDim / 2

	// inv_freq[i] = thetaBase^(-2i/headDim) for i in [0, headDim/2)
	invFreq := make([]float64, half)
	for i := 0; i < half; i++ {
		invFreq[i] = math.Pow(ropeThetaBase, -float64(2*i)/float64(r.headDim))
	}

	cos := make([]float32, length*r.headDim)
	sin := make([]float32, length*r.headDim)
	for pos := 0; pos < length; pos++ {
		base := pos * r.headDim
		for i := 0; i < half; i++ {
			angle := float64(pos) * invFreq[i]
			c := float32(math.Cos(angle))
			s := float32(math.Sin(angle))
			// Duplicate across both halves (split-halves layout).
			cos[base+i] = c
			sin[base+i] = s
			cos[base+i+half] = c
			sin[base+i+half] = s
		}
	}

	r.cos = cos
	r.sin = sin
	r.maxLen = length
}

// Rotate applies the rotary embedding for position pos to a head vector
// in place:
//
//	rotate(x) = x*cos + concat(-x2, x1)*sin
//
// where x1, x2 are the two halves of v. The caller must have grown the
// tables to cover pos.
func (r *RoPE) Rotate(v []float32, pos int) {
	if len(v) != r.headDim {
		panic(fmt.Sprintf("rope: vector length %d, head dimension %d", len(v), r.headDim))
	}
	if pos < 0 || pos >= r.maxLen {
		panic(fmt.Sprintf("rope: position %d outside cached length %d", pos, r.maxLen))
	}

	half := r.headDim / 2
	base := pos * r.headDim
	for i := 0; i < half; i++ {
		c := r.cos[base+i]
		s := r.sin[base+i]
		x1 := v[i]
		x2 := v[i+half]
		v[i] = x1*c - x2*s
		v[i+half] = x2*c + x1*s
	}
}

// CosSin returns copies of the table row for a position. Test helper.
func (r *RoPE) CosSin(pos int) (cos, sin []float32) {
	start := pos * r.headDim
	cos = make([]float32, r.headDim)
	sin = make([]float32, r.headDim)
	copy(cos, r.cos[start:start+r.headDim])
	copy(sin, r.sin[start:start+r.headDim])
	return cos, sin
}
