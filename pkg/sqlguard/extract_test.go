package sqlguard

import "testing"

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare statement",
			response: "SELECT * FROM orders",
			want:     "SELECT * FROM orders",
		},
		{
			name:     "sql code fence",
			response: "Here is the query:\n```sql\nSELECT id FROM orders;\n```\nLet me know if you need anything else.",
			want:     "SELECT id FROM orders",
		},
		{
			name:     "plain code fence",
			response: "```\nSELECT id FROM orders\n```",
			want:     "SELECT id FROM orders",
		},
		{
			name:     "prose before statement",
			response: "Sure! The query you want is SELECT count(*) FROM orders WHERE status = 'open'",
			want:     "SELECT count(*) FROM orders WHERE status = 'open'",
		},
		{
			name:     "think tags stripped",
			response: "<think>the user wants orders</think>SELECT * FROM orders",
			want:     "SELECT * FROM orders",
		},
		{
			name:     "multiple statements keeps first",
			response: "SELECT 1; SELECT 2",
			want:     "SELECT 1",
		},
		{
			name:     "cte preserved",
			response: "```sql\nWITH t AS (SELECT 1) SELECT * FROM t\n```",
			want:     "WITH t AS (SELECT 1) SELECT * FROM t",
		},
		{
			name:     "no sql at all",
			response: "I cannot answer that question.",
			want:     "",
		},
		{
			name:     "trailing semicolon stripped",
			response: "SELECT id FROM orders;",
			want:     "SELECT id FROM orders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSQL(tt.response); got != tt.want {
				t.Errorf("ExtractSQL(%q) = %q, want %q", tt.response, got, tt.want)
			}
		})
	}
}
