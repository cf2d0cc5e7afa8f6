package model

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig is a deliberately tiny model so tests stay fast.
func testConfig() Config {
	return Config{
		VocabSize: 48,
		Dim:       16,
		NumHeads:  2,
		NumLayers: 2,
		FFDim:     32,
		MaxSeqLen: 16,
		PadID:     0,
		EOSID:     1,
	}
}

func testModel(t *testing.T, seed int64) *Model {
	t.Helper()
	m, err := NewRandom(testConfig(), rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return m
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero vocab", func(c *Config) { c.VocabSize = 0 }, ErrInvalidConfig},
		{"negative dim", func(c *Config) { c.Dim = -1 }, ErrInvalidConfig},
		{"zero layers", func(c *Config) { c.NumLayers = 0 }, ErrInvalidConfig},
		{"zero heads", func(c *Config) { c.NumHeads = 0 }, ErrInvalidConfig},
		{"zero ff dim", func(c *Config) { c.FFDim = 0 }, ErrInvalidConfig},
		{"zero max seq len", func(c *Config) { c.MaxSeqLen = 0 }, ErrInvalidConfig},
		{"pad outside vocab", func(c *Config) { c.PadID = 48 }, ErrInvalidConfig},
		{"eos outside vocab", func(c *Config) { c.EOSID = -2 }, ErrInvalidConfig},
		{"indivisible heads", func(c *Config) { c.NumHeads = 5 }, ErrDimNotDivisible},
		{"odd head dim", func(c *Config) { c.Dim = 18; c.NumHeads = 2; c.FFDim = 36 }, ErrOddHeadDim},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}

	require.NoError(t, testConfig().Validate())
	require.NoError(t, DefaultConfig().Validate())
}

func TestNewTiesOutputHead(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)

	require.Same(t, m.TokEmb, m.OutHead)

	// Tying is shared storage, not an equal copy: a write through the
	// embedding must be visible through the head.
	m.TokEmb.Data[0] = 42
	assert.Equal(t, float32(42), m.OutHead.Data[0])
}

func TestForwardShape(t *testing.T) {
	m := testModel(t, 1)

	logits, err := m.Forward([]int{3, 7, 11})
	require.NoError(t, err)
	assert.Equal(t, []int{3, m.Config.VocabSize}, logits.Shape)
}

func TestForwardEmptyInput(t *testing.T) {
	m := testModel(t, 1)

	logits, err := m.Forward(nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, m.Config.VocabSize}, logits.Shape)
}

func TestForwardRejectsOutOfRangeToken(t *testing.T) {
	m := testModel(t, 1)

	_, err := m.Forward([]int{3, m.Config.VocabSize})
	require.ErrorIs(t, err, ErrTokenOutOfRange)

	_, err = m.Forward([]int{-1})
	require.ErrorIs(t, err, ErrTokenOutOfRange)
}

func TestForwardTruncatesLongHistory(t *testing.T) {
	m := testModel(t, 1)

	long := make([]int, m.Config.MaxSeqLen+50)
	for i := range long {
		long[i] = (i % (m.Config.VocabSize - 2)) + 2
	}

	logits, err := m.Forward(long)
	require.NoError(t, err)
	require.Equal(t, []int{m.Config.MaxSeqLen, m.Config.VocabSize}, logits.Shape)

	// The trailing window alone must yield the same logits.
	window, err := m.Forward(long[len(long)-m.Config.MaxSeqLen:])
	require.NoError(t, err)
	assert.Equal(t, window.Data, logits.Data)
}

func TestForwardIsCausal(t *testing.T) {
	m := testModel(t, 2)

	ids := []int{5, 9, 13, 21, 34}
	base, err := m.Forward(ids)
	require.NoError(t, err)

	// Perturb the last token: logits for every earlier position must be
	// untouched. The future never leaks backwards.
	perturbed := append([]int(nil), ids...)
	perturbed[len(perturbed)-1] = 40
	other, err := m.Forward(perturbed)
	require.NoError(t, err)

	for t2 := 0; t2 < len(ids)-1; t2++ {
		assert.Equal(t, base.Row(t2), other.Row(t2), "position %d", t2)
	}
	assert.NotEqual(t, base.Row(len(ids)-1), other.Row(len(ids)-1))
}

func TestForwardWithCacheMatchesUncached(t *testing.T) {
	m := testModel(t, 3)

	ids := []int{4, 8, 15, 16, 23, 42}
	full, err := m.Forward(ids)
	require.NoError(t, err)

	// Feed the same tokens one at a time through the cache. The last-row
	// logits of every incremental step must match the uncached pass
	// exactly, not just approximately.
	cache := NewCache(m.Config)
	for i, id := range ids {
		step, err := m.ForwardWithCache([]int{id}, cache)
		require.NoError(t, err)
		require.Equal(t, []int{1, m.Config.VocabSize}, step.Shape)
		assert.Equal(t, full.Row(i), step.Row(0), "step %d", i)
	}
	assert.Equal(t, len(ids), cache.Len())
}

func TestForwardWithCacheOverflow(t *testing.T) {
	m := testModel(t, 3)

	cache := NewCache(m.Config)
	ids := make([]int, m.Config.MaxSeqLen)
	_, err := m.ForwardWithCache(ids, cache)
	require.NoError(t, err)

	_, err = m.ForwardWithCache([]int{2}, cache)
	require.Error(t, err)

	cache.Reset()
	require.Zero(t, cache.Len())
	_, err = m.ForwardWithCache([]int{2}, cache)
	require.NoError(t, err)
}

func TestGenerateCachedMatchesUncached(t *testing.T) {
	m := testModel(t, 4)

	cfg := SampleConfig{MaxNewTokens: 24, Temperature: 0.8, TopK: 10, EOSID: 1}
	prompt := []int{7, 3, 12, 30, 5, 19}

	// 24 new tokens on a 16-token window forces the window to slide, so
	// this also exercises the cache reset path.
	cached, err := m.Generate(context.Background(), prompt, cfg, rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	uncached, err := m.GenerateUncached(context.Background(), prompt, cfg, rand.New(rand.NewSource(99)))
	require.NoError(t, err)

	assert.Equal(t, uncached, cached)
}

func TestCheckpointRoundTrip(t *testing.T) {
	m := testModel(t, 5)
	path := filepath.Join(t.TempDir(), "model.qlmc")

	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, m.Config, loaded.Config)

	// Tying survives the round trip.
	require.Same(t, loaded.TokEmb, loaded.OutHead)

	ids := []int{2, 9, 17, 33}
	want, err := m.Forward(ids)
	require.NoError(t, err)
	got, err := loaded.Forward(ids)
	require.NoError(t, err)
	assert.Equal(t, want.Data, got.Data)
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.qlmc")
	require.NoError(t, os.WriteFile(path, []byte("NOPE\x01\x00\x00\x00"), 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrBadCheckpoint)
}

func TestLoadRejectsTruncated(t *testing.T) {
	m := testModel(t, 6)
	path := filepath.Join(t.TempDir(), "model.qlmc")
	require.NoError(t, m.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	trunc := filepath.Join(t.TempDir(), "trunc.qlmc")
	require.NoError(t, os.WriteFile(trunc, raw[:len(raw)/2], 0o644))

	_, err = Load(trunc)
	require.ErrorIs(t, err, ErrBadCheckpoint)
}

func TestNumParametersCountsTiedMatrixOnce(t *testing.T) {
	m := testModel(t, 1)
	cfg := m.Config

	perBlock := 4*cfg.Dim*cfg.Dim + 3*cfg.Dim*cfg.FFDim + 2*cfg.Dim
	want := cfg.VocabSize*cfg.Dim + cfg.NumLayers*perBlock + cfg.Dim
	assert.Equal(t, want, m.NumParameters())
}
