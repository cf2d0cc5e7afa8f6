package tokenizer

// Reversible byte-to-unicode alphabet used by byte-level BPE vocabularies.
// Printable latin-1 bytes map to themselves; the rest shift into the
// private range starting at U+0100 so every byte has a visible, distinct
// character and decoding is exact.

var (
	byteToRune [256]rune
	runeToByte map[rune]byte
)

func init() {
	runeToByte = make(map[rune]byte, 256)

	isPrintable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}

	shift := 0
	for b := 0; b < 256; b++ {
		var r rune
		if isPrintable(b) {
			r = rune(b)
		} else {
			r = rune(256 + shift)
			shift++
		}
		byteToRune[b] = r
		runeToByte[r] = byte(b)
	}
}

// toByteLevel maps raw text into the byte-level alphabet.
func toByteLevel(s string) string {
	out := make([]rune, 0, len(s))
	for _, b := range []byte(s) {
		out = append(out, byteToRune[b])
	}
	return string(out)
}

// fromByteLevel inverts toByteLevel. Characters outside the alphabet are
// dropped; they can only come from a malformed vocabulary.
func fromByteLevel(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := runeToByte[r]; ok {
			out = append(out, b)
		}
	}
	return string(out)
}
