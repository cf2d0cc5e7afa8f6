package tokenizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTokenizer builds a tiny vocabulary by hand. "Ġ" is the byte-level
// image of a space.
func testTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	vocab := map[string]int{
		"q": 3, "u": 4, "b": 5, "i": 6, "t": 7,
		"qu": 8, "bit": 9, "bi": 10, "Ġ": 11, "Ġqu": 12,
	}
	merges := []mergePair{
		{"q", "u"},
		{"b", "i"},
		{"bi", "t"},
		{"Ġ", "qu"},
	}
	specials := map[string]int{SpecialPad: 0, SpecialEOS: 1, SpecialUnk: 2}

	tok, err := New(vocab, merges, specials)
	require.NoError(t, err)
	return tok
}

func TestNewRequiresSpecials(t *testing.T) {
	_, err := New(map[string]int{"a": 3}, nil, map[string]int{SpecialPad: 0, SpecialEOS: 1})
	require.ErrorIs(t, err, ErrMissingSpecial)
}

func TestSpecialIDs(t *testing.T) {
	tok := testTokenizer(t)
	assert.Equal(t, 0, tok.PadID())
	assert.Equal(t, 1, tok.EOSID())
	assert.Equal(t, 2, tok.UnkID())
	assert.Equal(t, 13, tok.VocabSize())
}

func TestEncodeAppliesMergesByRank(t *testing.T) {
	tok := testTokenizer(t)

	// q+u merges first, then b+i, then bi+t; "qubit" lands on two tokens.
	assert.Equal(t, []int{8, 9}, tok.Encode("qubit"))
}

func TestEncodeLeadingSpaceMerge(t *testing.T) {
	tok := testTokenizer(t)

	// The space attaches to the following word during pre-tokenization
	// and merges into the Ġqu token.
	assert.Equal(t, []int{8, 9, 12, 9}, tok.Encode("qubit qubit"))
}

func TestEncodeUnknownSymbolFallsBack(t *testing.T) {
	tok := testTokenizer(t)

	ids := tok.Encode("qz")
	assert.Equal(t, []int{3, 2}, ids)
}

func TestEncodeEmpty(t *testing.T) {
	tok := testTokenizer(t)
	assert.Empty(t, tok.Encode(""))
}

func TestDecodeSkipsSpecialsAndUnknownIDs(t *testing.T) {
	tok := testTokenizer(t)

	got := tok.Decode([]int{0, 8, 1, 9, 2, 999, -1})
	assert.Equal(t, "qubit", got)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tok := testTokenizer(t)

	for _, text := range []string{"qubit", "qubit qubit", "bit"} {
		assert.Equal(t, text, tok.Decode(tok.Encode(text)), "text %q", text)
	}
}

func TestSpecialTextIsNotRecognized(t *testing.T) {
	tok := testTokenizer(t)

	// Literal "<eos>" in input text must never encode to the eos id.
	assert.NotContains(t, tok.Encode("<eos>"), tok.EOSID())
}

func TestByteLevelRoundTrip(t *testing.T) {
	for _, s := range []string{"hello world", "αβγ", "a\nb\tc", "\x00\xff"} {
		assert.Equal(t, s, fromByteLevel(toByteLevel(s)), "input %q", s)
	}
}

func TestLoadStringMerges(t *testing.T) {
	path := writeVocab(t, `{
		"added_tokens": [
			{"id": 0, "content": "<pad>", "special": true},
			{"id": 1, "content": "<eos>", "special": true},
			{"id": 2, "content": "<unk>", "special": true}
		],
		"model": {
			"type": "BPE",
			"vocab": {"<pad>": 0, "<eos>": 1, "<unk>": 2, "a": 3, "b": 4, "ab": 5},
			"merges": ["a b"]
		}
	}`)

	tok, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, tok.Encode("ab"))
}

func TestLoadArrayMerges(t *testing.T) {
	path := writeVocab(t, `{
		"added_tokens": [
			{"id": 0, "content": "<pad>", "special": true},
			{"id": 1, "content": "<eos>", "special": true},
			{"id": 2, "content": "<unk>", "special": true}
		],
		"model": {
			"type": "BPE",
			"vocab": {"a": 3, "b": 4, "ab": 5},
			"merges": [["a", "b"]]
		}
	}`)

	tok, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, tok.Encode("ab"))
	assert.Equal(t, 1, tok.EOSID())
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := writeVocab(t, `{"model": {"type": "WordPiece"}}`)
	_, err := Load(path)
	require.ErrorIs(t, err, ErrBadVocabFile)

	path = writeVocab(t, `not json`)
	_, err = Load(path)
	require.ErrorIs(t, err, ErrBadVocabFile)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func writeVocab(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
