package prompts

import (
	"fmt"
	"strings"
)

// ExplanationPrompt creates the prompt for summarizing query results in plain
// language. sampleRows carries up to a handful of result rows rendered as CSV.
func ExplanationPrompt(question, sql string, columns []string, rowCount int, sampleRows string) string {
	var prompt strings.Builder

	prompt.WriteString("# Result Explanation\n\n")
	prompt.WriteString("Explain what the query results say, in plain language, for a non-technical reader.\n\n")

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(question)
	prompt.WriteString("\n\n")

	prompt.WriteString("## Executed SQL\n\n")
	prompt.WriteString("```sql\n")
	prompt.WriteString(sql)
	prompt.WriteString("\n```\n\n")

	prompt.WriteString("## Results\n\n")
	prompt.WriteString(fmt.Sprintf("Columns: %s\n", strings.Join(columns, ", ")))
	prompt.WriteString(fmt.Sprintf("Row count: %d\n\n", rowCount))
	if sampleRows != "" {
		prompt.WriteString("Sample rows (CSV):\n")
		prompt.WriteString(sampleRows)
		prompt.WriteString("\n")
	}

	prompt.WriteString("\n## Rules\n\n")
	prompt.WriteString("- Answer the question directly in the first sentence\n")
	prompt.WriteString("- Mention concrete numbers from the results, not the SQL mechanics\n")
	prompt.WriteString("- Note when results were truncated or empty\n")
	prompt.WriteString("- Keep it to 2-4 sentences, no markdown headers\n")

	return prompt.String()
}

// ExplanationSystemMessage returns the system message for result explanation.
func ExplanationSystemMessage() string {
	return `You are a data analyst explaining query results to a business user. You are concise, concrete, and you never invent numbers that are not in the results.`
}
