package model

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"quantumlm/pkg/tensor"
)

var (
	// ErrInvalidTemperature indicates a non-positive temperature. The value
	// is never clamped; greedy decoding is expressed as top_k=1 instead.
	ErrInvalidTemperature = errors.New("temperature must be positive")

	// ErrInvalidSampleConfig indicates an otherwise malformed sampling
	// configuration.
	ErrInvalidSampleConfig = errors.New("invalid sampling configuration")
)

// SampleConfig controls one generation run. TopK and TopP are disabled at
// zero; when both are set, top-k filtering applies first.
type SampleConfig struct {
	MaxNewTokens int
	Temperature  float64
	TopK         int
	TopP         float64
	EOSID        int
}

// DefaultSampleConfig returns the tuned question-answering settings.
func DefaultSampleConfig() SampleConfig {
	return SampleConfig{
		MaxNewTokens: 150,
		Temperature:  0.2,
		TopK:         30,
		TopP:         0,
		EOSID:        1,
	}
}

func (c SampleConfig) Validate() error {
	if c.Temperature <= 0 {
		return fmt.Errorf("%w: got %g", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxNewTokens <= 0 {
		return fmt.Errorf("%w: max_new_tokens %d", ErrInvalidSampleConfig, c.MaxNewTokens)
	}
	if c.TopK < 0 {
		return fmt.Errorf("%w: top_k %d", ErrInvalidSampleConfig, c.TopK)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("%w: top_p %g", ErrInvalidSampleConfig, c.TopP)
	}
	return nil
}

// Generate extends the prompt autoregressively until EOS, the token budget,
// or context cancellation. The returned slice is the prompt plus generated
// tokens, the terminating EOS included when one was drawn; decoding skips
// special ids. The caller owns the random source, which makes runs
// reproducible under a fixed seed.
func (m *Model) Generate(ctx context.Context, prompt []int, cfg SampleConfig, rng *rand.Rand) ([]int, error) {
	return m.generate(ctx, prompt, cfg, rng, true)
}

// GenerateUncached is Generate without the KV cache, re-running the full
// window every step. It exists for verification: both paths must produce
// identical sequences for identical inputs.
func (m *Model) GenerateUncached(ctx context.Context, prompt []int, cfg SampleConfig, rng *rand.Rand) ([]int, error) {
	return m.generate(ctx, prompt, cfg, rng, false)
}

func (m *Model) generate(ctx context.Context, prompt []int, cfg SampleConfig, rng *rand.Rand, useCache bool) ([]int, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidSampleConfig)
	}

	seq := make([]int, len(prompt))
	copy(seq, prompt)
	if len(seq) == 0 {
		seq = append(seq, m.Config.PadID)
	}

	var cache *Cache
	if useCache {
		cache = NewCache(m.Config)
	}
	// base is the sequence index where the current cache contents begin;
	// fed is the index up to which tokens have been pushed through the
	// model. When the window slides past base, the cached keys are stale
	// and the whole window is refed.
	base := 0
	fed := 0

	for n := 0; n < cfg.MaxNewTokens; n++ {
		if err := ctx.Err(); err != nil {
			return seq, err
		}

		start := 0
		if len(seq) > m.Config.MaxSeqLen {
			start = len(seq) - m.Config.MaxSeqLen
		}

		var logits *tensor.Tensor
		var err error
		if cache != nil {
			if start != base {
				cache.Reset()
				base = start
				fed = start
			}
			logits, err = m.ForwardWithCache(seq[fed:], cache)
			if err != nil {
				return nil, fmt.Errorf("generate: %w", err)
			}
			fed = len(seq)
		} else {
			logits, err = m.Forward(seq[start:])
			if err != nil {
				return nil, fmt.Errorf("generate: %w", err)
			}
		}

		last := logits.Row(logits.Shape[0] - 1)
		next := sampleToken(last, cfg, rng)
		seq = append(seq, next)
		if next == cfg.EOSID {
			break
		}
	}
	return seq, nil
}

// sampleToken draws one token id from the logits after applying
// temperature, top-k, and top-p filtering in that order.
func sampleToken(logits []float32, cfg SampleConfig, rng *rand.Rand) int {
	type scored struct {
		id    int
		logit float64
	}
	cand := make([]scored, len(logits))
	invT := 1.0 / cfg.Temperature
	for i, l := range logits {
		cand[i] = scored{id: i, logit: float64(l) * invT}
	}

	// Descending by logit, ascending id on ties, so top_k=1 is a
	// deterministic argmax regardless of temperature.
	sort.Slice(cand, func(i, j int) bool {
		if cand[i].logit != cand[j].logit {
			return cand[i].logit > cand[j].logit
		}
		return cand[i].id < cand[j].id
	})

	if cfg.TopK > 0 && cfg.TopK < len(cand) {
		cand = cand[:cfg.TopK]
	}

	probs := make([]float32, len(cand))
	for i, c := range cand {
		probs[i] = float32(c.logit)
	}
	tensor.SoftmaxInPlace(probs)

	if cfg.TopP > 0 && cfg.TopP < 1 {
		// Keep at least the top token; cut after cumulative mass first
		// exceeds the threshold.
		cum := 0.0
		keep := len(cand)
		for i, p := range probs {
			cum += float64(p)
			if cum > cfg.TopP {
				keep = i + 1
				break
			}
		}
		cand = cand[:keep]
		probs = probs[:keep]

		var total float32
		for _, p := range probs {
			total += p
		}
		for i := range probs {
			probs[i] /= total
		}
	}

	r := rng.Float64()
	cum := 0.0
	for i, p := range probs {
		cum += float64(p)
		if r < cum {
			return cand[i].id
		}
	}
	// Floating-point mass can sum slightly under one.
	return cand[len(cand)-1].id
}
