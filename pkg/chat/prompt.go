package chat

import "fmt"

// BuildPrompt assembles the prompt the model was trained on: retrieved
// context, the user question, and a trailing answer marker for the model to
// complete. The exact wording is load-bearing; changing it degrades output
// quality for existing checkpoints.
func BuildPrompt(contextText, question string) string {
	return fmt.Sprintf("Context: %s Question: %s Answer:", contextText, question)
}
