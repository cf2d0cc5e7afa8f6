package model

import (
	"errors"
	"fmt"
	"math/rand"

	"quantumlm/pkg/tensor"
)

// ErrUntiedWeights indicates the output head does not share storage with
// the embedding table. Weight tying is a construction-time invariant, not a
// copy; a model violating it is broken and must not be used.
var ErrUntiedWeights = errors.New("output head is not tied to the embedding table")

// ErrTokenOutOfRange indicates a token id outside the vocabulary.
var ErrTokenOutOfRange = errors.New("token id outside vocabulary")

// Model is the complete decoder-only transformer: embedding table, block
// stack, final normalization, and a weight-tied output head. Parameters are
// read-only after construction or load.
type Model struct {
	Config Config

	TokEmb    *tensor.Tensor // (vocab, dim)
	Blocks    []*Block
	FinalNorm *RMSNorm

	// OutHead shares storage with TokEmb: logits are computed against the
	// embedding rows, never against a copied projection.
	OutHead *tensor.Tensor

	rope *RoPE
}

// New constructs a model with zero-initialized projections and unit norm
// scales. Construction fails on an invalid configuration or if the tied
// output head cannot be established.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rope, err := NewRoPE(cfg.HeadDim(), cfg.MaxSeqLen)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Config:    cfg,
		TokEmb:    tensor.NewTensor([]int{cfg.VocabSize, cfg.Dim}),
		Blocks:    make([]*Block, cfg.NumLayers),
		FinalNorm: NewRMSNorm(cfg.Dim),
		rope:      rope,
	}
	for i := range m.Blocks {
		m.Blocks[i] = NewBlock(cfg, rope)
	}

	// Weight tying: the output head is the embedding tensor itself.
	m.OutHead = m.TokEmb

	if err := m.checkTied(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewRandom constructs a model and initializes every projection and the
// embedding from N(0, 0.02), matching the training-time initialization.
// Norm scales stay at one. The caller supplies the random source.
func NewRandom(cfg Config, rng *rand.Rand) (*Model, error) {
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}

	normalInit(rng, m.TokEmb)
	for _, b := range m.Blocks {
		normalInit(rng, b.Attn.WQ, b.Attn.WK, b.Attn.WV, b.Attn.WO)
		normalInit(rng, b.FF.WGate, b.FF.WUp, b.FF.WDown)
	}
	return m, nil
}

// checkTied verifies the output head and embedding share backing storage.
func (m *Model) checkTied() error {
	if m.OutHead == nil || m.TokEmb == nil {
		return ErrUntiedWeights
	}
	if len(m.OutHead.Data) == 0 || &m.OutHead.Data[0] != &m.TokEmb.Data[0] {
		return ErrUntiedWeights
	}
	return nil
}

// Forward embeds the ids, runs the block stack and final norm, and projects
// with the transposed embedding table. Returns logits of shape
// (seq, vocab). Histories beyond MaxSeqLen are truncated to the trailing
// window, never rejected.
func (m *Model) Forward(ids []int) (*tensor.Tensor, error) {
	if len(ids) > m.Config.MaxSeqLen {
		ids = ids[len(ids)-m.Config.MaxSeqLen:]
	}
	return m.forward(ids, nil)
}

// ForwardWithCache runs the stack over new ids appended after the cache
// contents. The combined length must fit the context window; the sampling
// loop is responsible for sliding the window and resetting the cache.
func (m *Model) ForwardWithCache(ids []int, cache *Cache) (*tensor.Tensor, error) {
	if cache == nil {
		return m.Forward(ids)
	}
	if len(cache.Layers) != len(m.Blocks) {
		return nil, fmt.Errorf("cache has %d layers, model has %d", len(cache.Layers), len(m.Blocks))
	}
	if cache.Len()+len(ids) > m.Config.MaxSeqLen {
		return nil, fmt.Errorf("cache overflow: %d cached + %d new exceeds max_seq_len %d",
			cache.Len(), len(ids), m.Config.MaxSeqLen)
	}
	return m.forward(ids, cache)
}

func (m *Model) forward(ids []int, cache *Cache) (*tensor.Tensor, error) {
	x := tensor.NewTensor([]int{len(ids), m.Config.Dim})
	for t, id := range ids {
		if id < 0 || id >= m.Config.VocabSize {
			return nil, fmt.Errorf("%w: id %d at position %d, vocab size %d",
				ErrTokenOutOfRange, id, t, m.Config.VocabSize)
		}
		copy(x.Row(t), m.TokEmb.Row(id))
	}

	var err error
	for i, b := range m.Blocks {
		var lc *LayerCache
		if cache != nil {
			lc = cache.Layers[i]
		}
		x, err = b.Forward(x, lc)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
	}

	x, err = m.FinalNorm.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("final norm: %w", err)
	}

	logits, err := tensor.MatmulTransposed(x, m.OutHead)
	if err != nil {
		return nil, fmt.Errorf("output head: %w", err)
	}
	return logits, nil
}

// Hyperparameters returns the model configuration.
func (m *Model) Hyperparameters() Config {
	return m.Config
}

// NumParameters returns the total parameter count, counting the tied
// embedding/output matrix once.
func (m *Model) NumParameters() int {
	n := m.TokEmb.Size() + m.FinalNorm.Weight.Size()
	for _, b := range m.Blocks {
		n += b.Attn.WQ.Size() + b.Attn.WK.Size() + b.Attn.WV.Size() + b.Attn.WO.Size()
		n += b.FF.WGate.Size() + b.FF.WUp.Size() + b.FF.WDown.Size()
		n += b.AttnNorm.Weight.Size() + b.FFNorm.Weight.Size()
	}
	return n
}

func normalInit(rng *rand.Rand, tensors ...*tensor.Tensor) {
	const std = 0.02
	for _, t := range tensors {
		for i := range t.Data {
			t.Data[i] = float32(rng.NormFloat64() * std)
		}
	}
}
