package chat

import "strings"

// Extractor isolates the model's first answer from a continuation that may
// hallucinate further Q&A turns. It never fails: text missing the expected
// markers degrades to best-effort trimmed output.
//
// StopMarkers is an ordered list, applied iteratively: each marker truncates
// the current answer at its first occurrence before the next is tried. The
// order matters. A general marker listed before a more specific one (such
// as "Question:" before "Q:") can clip prose that legitimately contains the
// later marker, so the precedence is kept configurable rather than fixed.
type Extractor struct {
	QuestionMarker string
	AnswerMarker   string
	StopMarkers    []string
}

// DefaultExtractor matches the prompt format produced by BuildPrompt.
func DefaultExtractor() *Extractor {
	return &Extractor{
		QuestionMarker: "Question:",
		AnswerMarker:   "Answer:",
		StopMarkers: []string{
			"Question:", // model starting a new turn
			"Q:",        // short question form used inside retrieved context
			"Context:",  // model hallucinating fresh context
			"\n\n",      // section break
		},
	}
}

// Extract returns the first answer span of the generated text, which
// includes the prompt. The user's question is introduced by QuestionMarker
// (retrieved context uses the short "Q:" form), so the answer is whatever
// follows the first AnswerMarker after it, cut at the stop markers.
func (e *Extractor) Extract(text string) string {
	questionIdx := strings.Index(text, e.QuestionMarker)

	var answer string
	if questionIdx == -1 {
		answerIdx := strings.Index(text, e.AnswerMarker)
		if answerIdx == -1 {
			return strings.TrimSpace(text)
		}
		answer = strings.TrimSpace(text[answerIdx+len(e.AnswerMarker):])
	} else {
		searchStart := questionIdx + len(e.QuestionMarker)
		answerIdx := strings.Index(text[searchStart:], e.AnswerMarker)
		if answerIdx == -1 {
			return strings.TrimSpace(text[searchStart:])
		}
		answer = strings.TrimSpace(text[searchStart+answerIdx+len(e.AnswerMarker):])
	}

	for _, stop := range e.StopMarkers {
		if i := strings.Index(answer, stop); i >= 0 {
			answer = strings.TrimSpace(answer[:i])
		}
	}
	return answer
}

// ExtractAnswer applies the default extractor.
func ExtractAnswer(text string) string {
	return DefaultExtractor().Extract(text)
}
