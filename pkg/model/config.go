// Package model implements a decoder-only transformer inference engine:
// RMSNorm pre-normalization, rotary position embeddings, SwiGLU feed-forward
// blocks, a weight-tied output head, and an autoregressive sampling loop.
//
// The package holds no global state. A Model's configuration and parameters
// are immutable after construction or checkpoint load; generation state lives
// in per-call values, so a loaded model can be shared for read access.
package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates a structurally invalid model configuration.
	ErrInvalidConfig = errors.New("invalid model config")

	// ErrDimNotDivisible indicates d_model is not divisible by n_heads.
	ErrDimNotDivisible = errors.New("d_model must be divisible by n_heads")

	// ErrOddHeadDim indicates the per-head dimension is odd, which the
	// rotary encoder cannot handle.
	ErrOddHeadDim = errors.New("head dimension must be even")
)

// Config holds the model hyperparameters. It is fixed at construction or
// checkpoint load and read-only afterwards.
type Config struct {
	// VocabSize is the size of the token vocabulary.
	VocabSize int `json:"vocab_size"`

	// Dim is the model width (embedding dimension).
	Dim int `json:"d_model"`

	// NumHeads is the number of attention heads.
	NumHeads int `json:"n_heads"`

	// NumLayers is the number of transformer blocks.
	NumLayers int `json:"n_layers"`

	// FFDim is the feed-forward hidden width.
	FFDim int `json:"d_ff"`

	// MaxSeqLen is the maximum context length for a single forward pass.
	// Longer histories are truncated to the trailing window, never rejected.
	MaxSeqLen int `json:"max_seq_len"`

	// Dropout is kept for checkpoint compatibility; inference ignores it.
	Dropout float32 `json:"dropout"`

	// PadID is the padding token id.
	PadID int `json:"pad_token_id"`

	// EOSID is the end-of-sequence token id.
	EOSID int `json:"eos_token_id"`
}

// DefaultConfig returns the hyperparameters of the trained quantum Q&A model.
func DefaultConfig() Config {
	return Config{
		VocabSize: 16384,
		Dim:       768,
		NumHeads:  12,
		NumLayers: 12,
		FFDim:     3072, // 4 * d_model
		MaxSeqLen: 1024,
		Dropout:   0,
		PadID:     0,
		EOSID:     1,
	}
}

// Validate checks that the configuration is structurally sound.
// Violations are fatal at construction time, never coerced.
func (c Config) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("%w: vocab_size must be positive, got %d", ErrInvalidConfig, c.VocabSize)
	}
	if c.Dim <= 0 {
		return fmt.Errorf("%w: d_model must be positive, got %d", ErrInvalidConfig, c.Dim)
	}
	if c.NumHeads <= 0 {
		return fmt.Errorf("%w: n_heads must be positive, got %d", ErrInvalidConfig, c.NumHeads)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("%w: n_layers must be positive, got %d", ErrInvalidConfig, c.NumLayers)
	}
	if c.FFDim <= 0 {
		return fmt.Errorf("%w: d_ff must be positive, got %d", ErrInvalidConfig, c.FFDim)
	}
	if c.MaxSeqLen <= 0 {
		return fmt.Errorf("%w: max_seq_len must be positive, got %d", ErrInvalidConfig, c.MaxSeqLen)
	}
	if c.PadID < 0 || c.PadID >= c.VocabSize {
		return fmt.Errorf("%w: pad_token_id %d outside vocabulary", ErrInvalidConfig, c.PadID)
	}
	if c.EOSID < 0 || c.EOSID >= c.VocabSize {
		return fmt.Errorf("%w: eos_token_id %d outside vocabulary", ErrInvalidConfig, c.EOSID)
	}
	if c.Dim%c.NumHeads != 0 {
		return fmt.Errorf("%w: d_model %d, n_heads %d", ErrDimNotDivisible, c.Dim, c.NumHeads)
	}
	if (c.Dim/c.NumHeads)%2 != 0 {
		return fmt.Errorf("%w: got %d", ErrOddHeadDim, c.Dim/c.NumHeads)
	}
	return nil
}

// HeadDim returns the dimension per attention head.
func (c Config) HeadDim() int {
	return c.Dim / c.NumHeads
}
