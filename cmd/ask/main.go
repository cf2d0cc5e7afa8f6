// Command ask answers a quantum-computing question against retrieved
// context text. It wires the checkpoint, the tokenizer, and the chat engine
// behind a flag/env/config-file surface.
//
// Every flag can also come from the environment (QLM_ prefix, dashes as
// underscores) or a YAML config file passed with --config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"quantumlm/internal/log"
	"quantumlm/pkg/chat"
	"quantumlm/pkg/model"
	"quantumlm/pkg/tokenizer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ask: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("ask", pflag.ContinueOnError)
	flags.String("config", "", "optional config file")
	flags.String("model", "model.qlmc", "checkpoint path")
	flags.String("tokenizer", "tokenizer.json", "tokenizer.json path")
	flags.String("context", "", "retrieved context text")
	flags.String("question", "", "question to answer")
	flags.String("preset", "chat", "sampling preset: chat or exploratory")
	flags.Int("max-tokens", 0, "override preset token budget")
	flags.Float64("temperature", 0, "override preset temperature")
	flags.Int("top-k", -1, "override preset top-k")
	flags.Float64("top-p", -1, "override preset top-p")
	flags.Int64("seed", 0, "random seed, 0 uses the clock")
	flags.String("log-level", "info", "debug, info, warn, or error")
	flags.Bool("log-json", false, "emit JSON logs")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvPrefix("QLM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	question := v.GetString("question")
	if question == "" {
		return fmt.Errorf("--question is required")
	}

	logger, err := newLogger(v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := model.Load(v.GetString("model"))
	if err != nil {
		return err
	}
	logger.Info("checkpoint loaded",
		"path", v.GetString("model"),
		"parameters", m.NumParameters(),
		"layers", m.Config.NumLayers,
	)

	tok, err := tokenizer.Load(v.GetString("tokenizer"))
	if err != nil {
		return err
	}

	sampling, err := buildSampling(v)
	if err != nil {
		return err
	}

	eng, err := chat.New(m, tok, logger, chat.Options{
		Sampling: sampling,
		Seed:     v.GetInt64("seed"),
	})
	if err != nil {
		return err
	}

	answer, err := eng.Ask(ctx, v.GetString("context"), question)
	if err != nil {
		return err
	}
	fmt.Println(answer)
	return nil
}

// buildSampling starts from the named preset and applies any explicit
// overrides on top.
func buildSampling(v *viper.Viper) (model.SampleConfig, error) {
	var s model.SampleConfig
	switch preset := v.GetString("preset"); preset {
	case "chat":
		s = chat.ChatSampling()
	case "exploratory":
		s = chat.ExploratorySampling()
	default:
		return s, fmt.Errorf("unknown preset %q", preset)
	}

	if n := v.GetInt("max-tokens"); n > 0 {
		s.MaxNewTokens = n
	}
	if t := v.GetFloat64("temperature"); t > 0 {
		s.Temperature = t
	}
	if k := v.GetInt("top-k"); k >= 0 {
		s.TopK = k
	}
	if p := v.GetFloat64("top-p"); p >= 0 {
		s.TopP = p
	}
	return s, nil
}

func newLogger(v *viper.Viper) (log.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("unknown log level %q", v.GetString("log-level"))
	}
	return log.New(log.Config{Level: level, JSON: v.GetBool("log-json")}), nil
}
