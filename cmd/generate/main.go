// Command generate runs a raw text continuation: no prompt template, no
// answer extraction. It is the low-level counterpart of cmd/ask, useful for
// poking at a checkpoint directly.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"quantumlm/pkg/model"
	"quantumlm/pkg/tokenizer"
)

func main() {
	modelPath := pflag.String("model", "", "checkpoint path; empty runs an untrained demo model")
	tokPath := pflag.String("tokenizer", "", "tokenizer.json path (required with --model)")
	prompt := pflag.String("prompt", "Quantum computing is", "input prompt text")
	maxTokens := pflag.Int("max-tokens", 50, "number of tokens to generate")
	temperature := pflag.Float64("temperature", 0.7, "sampling temperature, must be positive")
	topK := pflag.Int("top-k", 50, "top-k filter, 0 disables")
	topP := pflag.Float64("top-p", 0.9, "nucleus filter, 0 disables")
	seed := pflag.Int64("seed", 0, "random seed, 0 uses the clock")
	pflag.Parse()

	if err := run(*modelPath, *tokPath, *prompt, model.SampleConfig{
		MaxNewTokens: *maxTokens,
		Temperature:  *temperature,
		TopK:         *topK,
		TopP:         *topP,
	}, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "generate: %v\n", err)
		os.Exit(1)
	}
}

func run(modelPath, tokPath, prompt string, sampling model.SampleConfig, seed int64) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	var (
		m   *model.Model
		tok *tokenizer.Tokenizer
		err error
	)
	switch {
	case modelPath != "" && tokPath != "":
		if m, err = model.Load(modelPath); err != nil {
			return err
		}
		if tok, err = tokenizer.Load(tokPath); err != nil {
			return err
		}
	case modelPath == "" && tokPath == "":
		// Demo mode: a small random model fed raw byte ids. Output is
		// gibberish; the point is exercising the pipeline end to end.
		cfg := model.Config{
			VocabSize: 512, Dim: 64, NumHeads: 4, NumLayers: 2,
			FFDim: 128, MaxSeqLen: 128, PadID: 0, EOSID: 1,
		}
		if m, err = model.NewRandom(cfg, rng); err != nil {
			return err
		}
	default:
		return fmt.Errorf("--model and --tokenizer must be given together")
	}

	sampling.EOSID = m.Config.EOSID
	if err := sampling.Validate(); err != nil {
		return err
	}

	var ids []int
	if tok != nil {
		ids = tok.Encode(prompt)
	} else {
		for _, b := range []byte(prompt) {
			ids = append(ids, int(b)+2)
		}
	}

	fmt.Printf("prompt: %q (%d tokens)\n", prompt, len(ids))
	fmt.Printf("model: %d parameters, %d layers, vocab %d\n",
		m.NumParameters(), m.Config.NumLayers, m.Config.VocabSize)
	fmt.Printf("sampling: temperature=%.2f top_k=%d top_p=%.2f seed=%d\n\n",
		sampling.Temperature, sampling.TopK, sampling.TopP, seed)

	start := time.Now()
	out, err := m.Generate(ctx, ids, sampling, rng)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if tok != nil {
		fmt.Println(tok.Decode(out))
	} else {
		fmt.Printf("generated ids: %v\n", out[len(ids):])
	}
	newTokens := len(out) - len(ids)
	fmt.Printf("\n%d tokens in %s (%.1f tok/s)\n",
		newTokens, elapsed.Round(time.Millisecond), float64(newTokens)/elapsed.Seconds())
	return nil
}
