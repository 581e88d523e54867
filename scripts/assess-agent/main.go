// assess-agent evaluates the quality of SQL the conversational agent produced
// for a connection, using the query history it recorded. A score of 100 means
// every stored query correctly and efficiently answers the question it was
// generated for, given the schema insights that were available at the time.
//
// Failed queries (error recorded, zero rows) are assessed too - a well-formed
// query that failed because of a transient database problem should not be
// penalized, while a query that failed because it referenced a nonexistent
// column should be.
//
// Usage: go run ./scripts/assess-agent <connection-id>
//
// Requires: ANTHROPIC_API_KEY environment variable
// Database connection: Uses standard PG* environment variables
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/liushuangls/go-anthropic/v2"
)

const assessModel = "claude-sonnet-4-5-20250929"

// AssessmentResult contains the full assessment output
type AssessmentResult struct {
	CommitInfo       string            `json:"commit_info"`
	ConnectionName   string            `json:"connection_name"`
	ConnectionID     string            `json:"connection_id"`
	ModelUsed        string            `json:"model_used"`
	QueryCount       int               `json:"query_count"`
	FailedQueries    int               `json:"failed_queries"`
	QueryAssessments []QueryAssessment `json:"query_assessments"`
	FinalScore       int               `json:"final_score"`
}

// StoredQuery is one row from query_history plus session context.
type StoredQuery struct {
	ID         uuid.UUID
	Question   string
	SQL        string
	RowCount   int
	DurationMs int
	Error      *string
}

// QueryAssessment is the graded result for a single stored query.
type QueryAssessment struct {
	QueryID          string   `json:"query_id"`
	Question         string   `json:"question"`
	AnswersQuestion  bool     `json:"answers_question"`
	UsesRealSchema   bool     `json:"uses_real_schema"`
	ReasonableFailed bool     `json:"reasonable_failure,omitempty"`
	Issues           []string `json:"issues"`
	Score            int      `json:"score"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <connection-id>\n", os.Args[0])
		os.Exit(1)
	}

	connectionID, err := uuid.Parse(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid connection ID: %v\n", err)
		os.Exit(1)
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "ANTHROPIC_API_KEY environment variable is required")
		os.Exit(1)
	}

	ctx := context.Background()

	connStr := buildConnString()
	db, err := pgx.Connect(ctx, connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close(ctx)

	connectionName, err := loadConnectionName(ctx, db, connectionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load connection: %v\n", err)
		os.Exit(1)
	}

	queries, err := loadQueryHistory(ctx, db, connectionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load query history: %v\n", err)
		os.Exit(1)
	}
	if len(queries) == 0 {
		fmt.Fprintln(os.Stderr, "No query history recorded for this connection")
		os.Exit(1)
	}

	documents, err := loadInsightDocuments(ctx, db, connectionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load table insights: %v\n", err)
		os.Exit(1)
	}

	client := anthropic.NewClient(apiKey)

	result := AssessmentResult{
		CommitInfo:     getCommitInfo(),
		ConnectionName: connectionName,
		ConnectionID:   connectionID.String(),
		ModelUsed:      assessModel,
		QueryCount:     len(queries),
	}

	schemaContext := strings.Join(documents, "\n\n---\n\n")
	total := 0
	for _, q := range queries {
		if q.Error != nil {
			result.FailedQueries++
		}
		assessment := assessQuery(ctx, client, q, schemaContext)
		result.QueryAssessments = append(result.QueryAssessments, assessment)
		total += assessment.Score
	}
	result.FinalScore = total / len(queries)

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
}

func loadConnectionName(ctx context.Context, db *pgx.Conn, connectionID uuid.UUID) (string, error) {
	var name string
	err := db.QueryRow(ctx,
		"SELECT name FROM connections WHERE id = $1", connectionID).Scan(&name)
	if err != nil {
		return "", err
	}
	return name, nil
}

func loadQueryHistory(ctx context.Context, db *pgx.Conn, connectionID uuid.UUID) ([]StoredQuery, error) {
	rows, err := db.Query(ctx, `
		SELECT id, question, sql_text, row_count, duration_ms, error
		FROM query_history
		WHERE connection_id = $1
		ORDER BY created_at`, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queries []StoredQuery
	for rows.Next() {
		var q StoredQuery
		if err := rows.Scan(&q.ID, &q.Question, &q.SQL, &q.RowCount, &q.DurationMs, &q.Error); err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

func loadInsightDocuments(ctx context.Context, db *pgx.Conn, connectionID uuid.UUID) ([]string, error) {
	rows, err := db.Query(ctx, `
		SELECT document FROM table_insights
		WHERE connection_id = $1
		ORDER BY schema_name, table_name`, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var documents []string
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}
	return documents, rows.Err()
}

func assessQuery(ctx context.Context, client *anthropic.Client, q StoredQuery, schemaContext string) QueryAssessment {
	outcome := fmt.Sprintf("Returned %d rows in %dms.", q.RowCount, q.DurationMs)
	if q.Error != nil {
		outcome = fmt.Sprintf("FAILED with error: %s", *q.Error)
	}

	prompt := fmt.Sprintf(`You are assessing the quality of a SQL query generated by a
natural-language database agent.

## AVAILABLE SCHEMA (what the agent knew about the database)
%s

## USER QUESTION
%s

## GENERATED SQL
%s

## EXECUTION OUTCOME
%s

## ASSESSMENT TASK
Judge whether the SQL correctly answers the question using the schema the
agent had available. If the query failed, judge whether the failure reflects
a generation mistake (wrong table or column, bad syntax) or an environmental
problem outside the agent's control (timeout, permissions).

Return a JSON object:
{
  "answers_question": true/false,  // Would the query's result answer the user's question?
  "uses_real_schema": true/false,  // Does the SQL reference only tables and columns from the schema?
  "reasonable_failure": true/false, // If it failed, was the failure outside the agent's control?
  "issues": ["list of generation mistakes - things the agent should have done better"],
  "score": 0-100  // Query quality score (100 = correct, idiomatic SQL that answers the question)
}

Return ONLY the JSON object, no other text.`, schemaContext, q.Question, q.SQL, outcome)

	resp, err := client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     assessModel,
		MaxTokens: 1000,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return QueryAssessment{
			QueryID:  q.ID.String(),
			Question: q.Question,
			Issues:   []string{fmt.Sprintf("Assessment failed: %v", err)},
			Score:    0,
		}
	}

	responseText := ""
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			responseText = *block.Text
			break
		}
	}

	var result QueryAssessment
	responseText = extractJSON(responseText)
	if err := json.Unmarshal([]byte(responseText), &result); err != nil {
		return QueryAssessment{
			QueryID:  q.ID.String(),
			Question: q.Question,
			Issues:   []string{fmt.Sprintf("Failed to parse assessment: %v", err)},
			Score:    0,
		}
	}
	result.QueryID = q.ID.String()
	result.Question = q.Question
	return result
}

func extractJSON(s string) string {
	// Find JSON object in response
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func buildConnString() string {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "postgres")
	password := os.Getenv("PGPASSWORD")
	dbname := getEnvOrDefault("PGDATABASE", "lumina_engine")

	connStr := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname)
	if password != "" {
		connStr += fmt.Sprintf(" password=%s", password)
	}
	return connStr
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getCommitInfo() string {
	cmd := exec.Command("git", "describe", "--always", "--dirty")
	output, err := cmd.Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(output))
}
