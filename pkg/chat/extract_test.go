package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "full prompt with hallucinated second turn",
			text: "Context: Q: What is superposition? A: A state mix. Question: What is a qubit? Answer: A qubit is a two-level quantum system. Question: What is entanglement? Answer: junk",
			want: "A qubit is a two-level quantum system.",
		},
		{
			name: "answer marker only",
			text: "Answer: X",
			want: "X",
		},
		{
			name: "no markers at all",
			text: "Hello world",
			want: "Hello world",
		},
		{
			name: "blank line cuts trailing hallucination",
			text: "Question: What is a gate? Answer: A gate is a unitary operation.\n\nThe Hadamard gate is",
			want: "A gate is a unitary operation.",
		},
		{
			name: "question without answer marker",
			text: "Question: What is a qubit? Maybe something",
			want: "What is a qubit? Maybe something",
		},
		{
			name: "hallucinated context cut",
			text: "Question: What is a qubit? Answer: A two-level system. Context: more retrieved text",
			want: "A two-level system.",
		},
		{
			name: "short question form cut",
			text: "Question: What is a qubit? Answer: A two-level system. Q: next",
			want: "A two-level system.",
		},
		{
			name: "empty text",
			text: "",
			want: "",
		},
		{
			name: "whitespace trimmed",
			text: "Answer:    spaced out   ",
			want: "spaced out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractAnswer(tt.text))
		})
	}
}

func TestExtractMarkerOrderIsObservable(t *testing.T) {
	// "Question:" is scanned before "Q:", so prose containing a literal
	// "Q:" is clipped there. The list is configurable for callers who
	// want different precedence.
	text := "Question: What? Answer: See FAQ Q: item three. Question: next"
	assert.Equal(t, "See FAQ", ExtractAnswer(text))

	e := DefaultExtractor()
	e.StopMarkers = []string{"Question:"}
	assert.Equal(t, "See FAQ Q: item three.", e.Extract(text))
}
