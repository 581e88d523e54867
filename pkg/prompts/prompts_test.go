package prompts

import (
	"strings"
	"testing"
)

func TestIntentPrompt_IncludesHistory(t *testing.T) {
	history := []HistoryEntry{
		{Role: "user", Content: "how many orders shipped last month?"},
		{Role: "assistant", Content: "There were 240 shipped orders."},
	}

	prompt := IntentPrompt("and the month before?", history)

	if !strings.Contains(prompt, "# Question Understanding") {
		t.Error("expected section header")
	}
	if !strings.Contains(prompt, "## Conversation History") {
		t.Error("expected history section when history is present")
	}
	if !strings.Contains(prompt, "how many orders shipped last month?") {
		t.Error("expected prior question in history")
	}
	if !strings.Contains(prompt, "and the month before?") {
		t.Error("expected latest question")
	}
}

func TestIntentPrompt_OmitsEmptyHistory(t *testing.T) {
	prompt := IntentPrompt("total revenue by region", nil)

	if strings.Contains(prompt, "## Conversation History") {
		t.Error("expected no history section for a fresh session")
	}
	if !strings.Contains(prompt, "total revenue by region") {
		t.Error("expected the question")
	}
}

func TestSQLGenerationPrompt_IncludesDocuments(t *testing.T) {
	documents := []TableDocument{
		{SchemaName: "public", TableName: "orders", Document: "# Table: public.orders\norders doc"},
		{SchemaName: "public", TableName: "customers", Document: "# Table: public.customers\ncustomers doc"},
	}

	prompt := SQLGenerationPrompt("orders per customer", "count of orders grouped by customer", documents)

	if !strings.Contains(prompt, "# SQL Generation") {
		t.Error("expected section header")
	}
	if !strings.Contains(prompt, "## Available Tables") {
		t.Error("expected tables section")
	}
	for _, doc := range documents {
		if !strings.Contains(prompt, doc.Document) {
			t.Errorf("expected document for %s.%s", doc.SchemaName, doc.TableName)
		}
	}
	if !strings.Contains(prompt, "count of orders grouped by customer") {
		t.Error("expected refined intent in prompt")
	}
}

func TestExplanationPrompt_IncludesResults(t *testing.T) {
	prompt := ExplanationPrompt(
		"how many orders per status?",
		"SELECT status, COUNT(*) FROM orders GROUP BY status",
		[]string{"status", "count"},
		3,
		"pending,10\nshipped,42",
	)

	if !strings.Contains(prompt, "# Result Explanation") {
		t.Error("expected section header")
	}
	if !strings.Contains(prompt, "shipped,42") {
		t.Error("expected sample rows")
	}
	if !strings.Contains(prompt, "SELECT status, COUNT(*)") {
		t.Error("expected executed SQL")
	}
}

func TestIndexingAdvisoryPrompt_IncludesStatistics(t *testing.T) {
	prompt := IndexingAdvisoryPrompt("public.orders", 1200, ColumnProfile{
		Name:          "status",
		DataType:      "text",
		DistinctCount: 3,
		NullCount:     0,
		SampleValues:  []string{"pending", "shipped", "delivered"},
		RuleStrategy:  "categorical",
	})

	if !strings.Contains(prompt, "# Column Indexing Review") {
		t.Error("expected section header")
	}
	if !strings.Contains(prompt, "Distinct values: 3") {
		t.Error("expected distinct count")
	}
	if !strings.Contains(prompt, "Rule-based decision: categorical") {
		t.Error("expected rule decision")
	}
	if !strings.Contains(prompt, "pending, shipped, delivered") {
		t.Error("expected sample values")
	}
	if !strings.Contains(prompt, "Return ONLY the JSON") {
		t.Error("expected JSON output contract")
	}
}

func TestIndexingAdvisoryPrompt_KeyFlags(t *testing.T) {
	prompt := IndexingAdvisoryPrompt("public.orders", 1200, ColumnProfile{
		Name:         "customer_id",
		DataType:     "integer",
		IsForeignKey: true,
		RuleStrategy: "skip",
	})

	if !strings.Contains(prompt, "foreign key") {
		t.Error("expected foreign key flag")
	}
}
