package prompts

import (
	"fmt"
	"strings"
)

// TableDocument is a retrieved schema document supplied as generation context.
type TableDocument struct {
	SchemaName string
	TableName  string
	Document   string
}

// SQLGenerationPrompt creates the prompt for generating a read-only SQL query
// from the user's question, its extracted intent, and the schema documents
// retrieved for the connection.
func SQLGenerationPrompt(question, intent string, documents []TableDocument) string {
	var prompt strings.Builder

	prompt.WriteString("# SQL Generation\n\n")
	prompt.WriteString("Write one PostgreSQL query that answers the question using ONLY the tables described below.\n\n")

	prompt.WriteString("## Available Tables\n\n")
	for _, doc := range documents {
		prompt.WriteString(fmt.Sprintf("### %s.%s\n\n", doc.SchemaName, doc.TableName))
		prompt.WriteString(doc.Document)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(question)
	prompt.WriteString("\n\n")

	if intent != "" && intent != question {
		prompt.WriteString("## Interpreted Intent\n\n")
		prompt.WriteString(intent)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Return exactly one SELECT statement (CTEs with WITH are allowed)\n")
	prompt.WriteString("- Never write INSERT, UPDATE, DELETE, DDL, or session commands\n")
	prompt.WriteString("- Use only tables and columns listed in the schema documents above\n")
	prompt.WriteString("- Quote identifiers only when they contain uppercase or special characters\n")
	prompt.WriteString("- When a column enumerates its categorical values, match against those exact values\n")
	prompt.WriteString("- Prefer explicit JOINs over implicit ones\n")
	prompt.WriteString("- Return the SQL in a ```sql code block with no other text\n")

	return prompt.String()
}

// SQLGenerationSystemMessage returns the system message for SQL generation.
func SQLGenerationSystemMessage() string {
	return `You are an expert PostgreSQL analyst. You translate questions into a single correct, read-only SQL query grounded in the provided schema, and you output only that query.`
}
