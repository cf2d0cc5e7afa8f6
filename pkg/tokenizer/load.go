package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrBadVocabFile = errors.New("malformed tokenizer file")

// tokenizerFile mirrors the subset of the tokenizer.json layout we read:
// the added special tokens and the BPE model's vocabulary and merge list.
type tokenizerFile struct {
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
	Model struct {
		Type   string            `json:"type"`
		Vocab  map[string]int    `json:"vocab"`
		Merges []json.RawMessage `json:"merges"`
	} `json:"model"`
}

// Load reads a tokenizer.json vocabulary from disk.
func Load(path string) (*Tokenizer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	var file tokenizerFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w: %v", path, ErrBadVocabFile, err)
	}
	if file.Model.Type != "" && file.Model.Type != "BPE" {
		return nil, fmt.Errorf("load tokenizer %s: %w: model type %q", path, ErrBadVocabFile, file.Model.Type)
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("load tokenizer %s: %w: empty vocabulary", path, ErrBadVocabFile)
	}

	merges := make([]mergePair, 0, len(file.Model.Merges))
	for i, m := range file.Model.Merges {
		pair, err := parseMerge(m)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer %s: %w: merge %d: %v", path, ErrBadVocabFile, i, err)
		}
		merges = append(merges, pair)
	}

	specials := make(map[string]int, len(file.AddedTokens))
	for _, at := range file.AddedTokens {
		if at.Special {
			specials[at.Content] = at.ID
			// Specials also live in the model vocab; strip them so they
			// never match during merging.
			delete(file.Model.Vocab, at.Content)
		}
	}

	t, err := New(file.Model.Vocab, merges, specials)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return t, nil
}

// parseMerge accepts both merge encodings found in the wild: a single
// "left right" string, or a two-element array.
func parseMerge(raw json.RawMessage) (mergePair, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		left, right, ok := strings.Cut(s, " ")
		if !ok {
			return mergePair{}, fmt.Errorf("no separator in %q", s)
		}
		return mergePair{left: left, right: right}, nil
	}

	var pair [2]string
	if err := json.Unmarshal(raw, &pair); err != nil {
		return mergePair{}, err
	}
	return mergePair{left: pair[0], right: pair[1]}, nil
}
