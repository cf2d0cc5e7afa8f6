// Package tokenizer implements byte-level Byte-Pair Encoding (BPE)
// tokenization loaded from a tokenizer.json vocabulary.
//
// The vocabulary operates on a reversible byte-to-unicode alphabet, so any
// input encodes without loss: bytes missing from the vocabulary fall back to
// the unknown token rather than failing. Special tokens (<pad>, <eos>,
// <unk>) are never produced from plain text and are skipped on decode.
package tokenizer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Canonical special token strings. Their ids come from the vocabulary file.
const (
	SpecialPad = "<pad>"
	SpecialEOS = "<eos>"
	SpecialUnk = "<unk>"
)

// splitPattern approximates the GPT-2 byte-level pre-tokenizer. Go's regexp
// has no negative lookahead, so the GPT-2 pattern's \s+(?!\S) clause
// collapses into plain \s+; whitespace runs before a word keep their
// trailing space attached to the run instead of the word.
const splitPattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`

var ErrMissingSpecial = errors.New("vocabulary is missing a special token")

// Tokenizer encodes text to token ids and back. It is immutable after
// construction and safe for concurrent readers.
type Tokenizer struct {
	vocab   map[string]int // byte-level token string -> id
	tokens  []string       // id -> token string; "" for unassigned ids
	ranks   map[mergePair]int
	special map[int]bool

	pattern *regexp.Regexp

	padID int
	eosID int
	unkID int
}

type mergePair struct {
	left, right string
}

// New builds a tokenizer from an explicit vocabulary, merge list, and
// special token set. Load is the usual entry point; New exists so tests can
// construct tiny vocabularies by hand.
func New(vocab map[string]int, merges []mergePair, specials map[string]int) (*Tokenizer, error) {
	t := &Tokenizer{
		vocab:   make(map[string]int, len(vocab)+len(specials)),
		ranks:   make(map[mergePair]int, len(merges)),
		special: make(map[int]bool, len(specials)),
		pattern: regexp.MustCompile(splitPattern),
	}

	maxID := -1
	for tok, id := range vocab {
		if id < 0 {
			return nil, fmt.Errorf("tokenizer: negative id %d for %q", id, tok)
		}
		t.vocab[tok] = id
		if id > maxID {
			maxID = id
		}
	}
	for tok, id := range specials {
		if id < 0 {
			return nil, fmt.Errorf("tokenizer: negative id %d for %q", id, tok)
		}
		t.vocab[tok] = id
		t.special[id] = true
		if id > maxID {
			maxID = id
		}
	}

	t.tokens = make([]string, maxID+1)
	for tok, id := range t.vocab {
		if prev := t.tokens[id]; prev != "" && prev != tok {
			return nil, fmt.Errorf("tokenizer: id %d assigned to both %q and %q", id, prev, tok)
		}
		t.tokens[id] = tok
	}

	for i, m := range merges {
		t.ranks[m] = i
	}

	var ok bool
	if t.padID, ok = t.vocab[SpecialPad]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingSpecial, SpecialPad)
	}
	if t.eosID, ok = t.vocab[SpecialEOS]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingSpecial, SpecialEOS)
	}
	if t.unkID, ok = t.vocab[SpecialUnk]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingSpecial, SpecialUnk)
	}
	return t, nil
}

// Encode converts text to token ids. Special tokens are not recognized in
// the input; their literal text encodes like any other text.
func (t *Tokenizer) Encode(text string) []int {
	if text == "" {
		return nil
	}

	var ids []int
	for _, piece := range t.pattern.FindAllString(text, -1) {
		for _, sym := range t.bpe(toByteLevel(piece)) {
			id, ok := t.vocab[sym]
			if !ok {
				id = t.unkID
			}
			ids = append(ids, id)
		}
	}
	return ids
}

// Decode converts token ids back to text. Special tokens and ids outside
// the vocabulary are skipped, matching decode(skip_special_tokens=True).
func (t *Tokenizer) Decode(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(t.tokens) || t.special[id] {
			continue
		}
		sb.WriteString(t.tokens[id])
	}
	return fromByteLevel(sb.String())
}

// bpe merges the byte-level symbols of one pre-token piece, always taking
// the lowest-ranked adjacent pair first, until no learned merge applies.
func (t *Tokenizer) bpe(piece string) []string {
	syms := make([]string, 0, len(piece))
	for _, r := range piece {
		syms = append(syms, string(r))
	}

	for len(syms) > 1 {
		best := -1
		bestRank := 0
		for i := 0; i < len(syms)-1; i++ {
			rank, ok := t.ranks[mergePair{syms[i], syms[i+1]}]
			if !ok {
				continue
			}
			if best < 0 || rank < bestRank {
				best = i
				bestRank = rank
			}
		}
		if best < 0 {
			break
		}
		merged := syms[best] + syms[best+1]
		syms = append(syms[:best+1], syms[best+2:]...)
		syms[best] = merged
	}
	return syms
}

// VocabSize returns the number of ids the tokenizer can emit, including
// unassigned gaps.
func (t *Tokenizer) VocabSize() int {
	return len(t.tokens)
}

func (t *Tokenizer) PadID() int { return t.padID }
func (t *Tokenizer) EOSID() int { return t.eosID }
func (t *Tokenizer) UnkID() int { return t.unkID }
