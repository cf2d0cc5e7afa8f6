// Package chat wires the transformer, the tokenizer, and the answer
// extractor into a question-answering engine: retrieved context plus a user
// question in, one clean answer out.
package chat

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"quantumlm/internal/log"
	"quantumlm/pkg/model"
)

var (
	// ErrTokenizerMismatch indicates the tokenizer and model disagree on
	// vocabulary size or special token ids.
	ErrTokenizerMismatch = errors.New("tokenizer does not match model")
)

// LanguageModel is the generation surface the engine needs. *model.Model
// satisfies it.
type LanguageModel interface {
	Generate(ctx context.Context, prompt []int, cfg model.SampleConfig, rng *rand.Rand) ([]int, error)
	Hyperparameters() model.Config
}

// Tokenizer converts between text and token ids. *tokenizer.Tokenizer
// satisfies it.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
	VocabSize() int
	PadID() int
	EOSID() int
}

// Options configures an Engine. The zero value selects the tuned
// question-answering sampling settings and a time-based seed.
type Options struct {
	// Sampling overrides the per-generation settings when non-zero.
	Sampling model.SampleConfig

	// Seed fixes the random source for every generation when non-zero,
	// making runs reproducible. Zero seeds each generation from the clock.
	Seed int64

	// Extractor overrides the answer extraction markers when non-nil.
	Extractor *Extractor
}

// ChatSampling returns the sampling settings tuned for serving answers:
// low temperature, tight nucleus.
func ChatSampling() model.SampleConfig {
	return model.DefaultSampleConfig()
}

// ExploratorySampling returns the looser settings used for model
// evaluation and sanity checks.
func ExploratorySampling() model.SampleConfig {
	return model.SampleConfig{
		MaxNewTokens: 100,
		Temperature:  0.7,
		TopK:         50,
		TopP:         0.9,
		EOSID:        1,
	}
}

// Engine answers questions with a loaded model and tokenizer. It is
// stateless across calls; each Ask runs an independent generation session.
type Engine struct {
	lm      LanguageModel
	tok     Tokenizer
	logger  log.Logger
	extract *Extractor

	sampling model.SampleConfig
	seed     int64
}

// New validates that the tokenizer fits the model and returns an engine.
// A nil logger discards engine logs.
func New(lm LanguageModel, tok Tokenizer, logger log.Logger, opts Options) (*Engine, error) {
	if lm == nil || tok == nil {
		return nil, errors.New("chat: nil model or tokenizer")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	cfg := lm.Hyperparameters()
	if tok.VocabSize() > cfg.VocabSize {
		return nil, fmt.Errorf("%w: tokenizer vocab %d exceeds model vocab %d",
			ErrTokenizerMismatch, tok.VocabSize(), cfg.VocabSize)
	}
	if tok.PadID() != cfg.PadID || tok.EOSID() != cfg.EOSID {
		return nil, fmt.Errorf("%w: special ids pad=%d/eos=%d, model expects pad=%d/eos=%d",
			ErrTokenizerMismatch, tok.PadID(), tok.EOSID(), cfg.PadID, cfg.EOSID)
	}

	sampling := opts.Sampling
	if sampling == (model.SampleConfig{}) {
		sampling = ChatSampling()
	}
	sampling.EOSID = cfg.EOSID
	if err := sampling.Validate(); err != nil {
		return nil, err
	}

	extract := opts.Extractor
	if extract == nil {
		extract = DefaultExtractor()
	}

	return &Engine{
		lm:       lm,
		tok:      tok,
		logger:   logger,
		extract:  extract,
		sampling: sampling,
		seed:     opts.Seed,
	}, nil
}

// Ask answers a question against retrieved context: build the prompt, run
// one generation, and extract the first answer from the continuation.
func (e *Engine) Ask(ctx context.Context, contextText, question string) (string, error) {
	text, err := e.GenerateText(ctx, BuildPrompt(contextText, question))
	if err != nil {
		return "", err
	}
	return e.extract.Extract(text), nil
}

// GenerateText runs one raw generation session and returns the decoded
// text, prompt included. Ask is the extraction-aware wrapper.
func (e *Engine) GenerateText(ctx context.Context, prompt string) (string, error) {
	session := uuid.NewString()
	ids := e.tok.Encode(prompt)

	seed := e.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	e.logger.Debug("generation started",
		"session", session,
		"prompt_tokens", len(ids),
	)
	start := time.Now()

	out, err := e.lm.Generate(ctx, ids, e.sampling, rng)
	if err != nil {
		e.logger.Error("generation failed", "session", session, "error", err)
		return "", fmt.Errorf("chat: generate: %w", err)
	}

	e.logger.Info("generation finished",
		"session", session,
		"prompt_tokens", len(ids),
		"new_tokens", len(out)-len(ids),
		"duration", time.Since(start),
	)
	return e.tok.Decode(out), nil
}
