package prompts

import (
	"fmt"
	"strings"
)

// HistoryEntry is one prior conversational turn supplied as context.
type HistoryEntry struct {
	Role    string
	Content string
}

// IntentPrompt creates the prompt for rewriting a user question into a
// self-contained analytical intent, using recent conversation history to
// resolve pronouns and follow-ups.
func IntentPrompt(question string, history []HistoryEntry) string {
	var prompt strings.Builder

	prompt.WriteString("# Question Understanding\n\n")
	prompt.WriteString("Rewrite the user's latest question as a single, self-contained data question.\n")
	prompt.WriteString("Resolve pronouns and references (\"those\", \"the same\", \"them\") using the conversation history.\n\n")

	if len(history) > 0 {
		prompt.WriteString("## Conversation History\n\n")
		for _, h := range history {
			prompt.WriteString(fmt.Sprintf("%s: %s\n", h.Role, h.Content))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Latest Question\n\n")
	prompt.WriteString(question)
	prompt.WriteString("\n\n")

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Return ONLY the rewritten question, no preamble and no quotes\n")
	prompt.WriteString("- Keep the user's wording where it is already unambiguous\n")
	prompt.WriteString("- Do not answer the question and do not write SQL\n")
	prompt.WriteString("- If the question is already self-contained, return it unchanged\n")

	return prompt.String()
}

// IntentSystemMessage returns the system message for intent extraction.
func IntentSystemMessage() string {
	return `You are a precise question rewriter for a database assistant. You restate user questions as standalone analytical questions and output nothing else.`
}
