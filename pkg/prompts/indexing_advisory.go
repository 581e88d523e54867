package prompts

import (
	"fmt"
	"strings"
)

// ColumnProfile carries the statistics the advisory model reasons over for a
// single column.
type ColumnProfile struct {
	Name          string
	DataType      string
	IsNullable    bool
	IsPrimaryKey  bool
	IsForeignKey  bool
	DistinctCount int64
	NullCount     int64
	SampleValues  []string
	RuleStrategy  string
}

// IndexingAdvisoryPrompt creates the prompt asking the model to refine the
// rule-based indexing strategy for one column. The response is JSON with
// `strategy` and `reasoning` fields.
func IndexingAdvisoryPrompt(tableName string, rowCount int64, column ColumnProfile) string {
	var prompt strings.Builder

	prompt.WriteString("# Column Indexing Review\n\n")
	prompt.WriteString("Decide how a column's values should be indexed for semantic search over a database schema.\n\n")

	prompt.WriteString("## Strategies\n\n")
	prompt.WriteString("- `categorical`: enumerate the full value set (small, stable vocabularies like statuses or types)\n")
	prompt.WriteString("- `vector`: embed sampled values (free text, names, descriptions)\n")
	prompt.WriteString("- `skip`: exclude values entirely (identifiers, timestamps, opaque or high-churn data)\n\n")

	prompt.WriteString("## Column\n\n")
	prompt.WriteString(fmt.Sprintf("Table: %s (%d rows)\n", tableName, rowCount))
	prompt.WriteString(fmt.Sprintf("Column: %s (%s)\n", column.Name, column.DataType))
	flags := []string{}
	if column.IsPrimaryKey {
		flags = append(flags, "primary key")
	}
	if column.IsForeignKey {
		flags = append(flags, "foreign key")
	}
	if column.IsNullable {
		flags = append(flags, "nullable")
	}
	if len(flags) > 0 {
		prompt.WriteString(fmt.Sprintf("Flags: %s\n", strings.Join(flags, ", ")))
	}
	prompt.WriteString(fmt.Sprintf("Distinct values: %d\n", column.DistinctCount))
	prompt.WriteString(fmt.Sprintf("Null values: %d\n", column.NullCount))
	if len(column.SampleValues) > 0 {
		prompt.WriteString(fmt.Sprintf("Sample values: %s\n", strings.Join(column.SampleValues, ", ")))
	}
	prompt.WriteString(fmt.Sprintf("\nRule-based decision: %s\n\n", column.RuleStrategy))

	prompt.WriteString("## Guidance\n\n")
	prompt.WriteString("- Agree with the rule-based decision unless the samples clearly contradict it\n")
	prompt.WriteString("- A column of machine-generated tokens (hashes, URLs, UUIDs in text) should be `skip` even when typed as text\n")
	prompt.WriteString("- A small closed vocabulary should be `categorical` even when the type looks generic\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with:\n")
	prompt.WriteString("- `strategy`: one of \"categorical\", \"vector\", \"skip\"\n")
	prompt.WriteString("- `reasoning`: brief explanation (1 sentence)\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// IndexingAdvisorySystemMessage returns the system message for advisory review.
func IndexingAdvisorySystemMessage() string {
	return `You are a database indexing expert. You review per-column statistics and choose how column values should be indexed for semantic schema search.`
}
