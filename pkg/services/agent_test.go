package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/lumina-data/lumina-engine/pkg/apperrors"
	"github.com/lumina-data/lumina-engine/pkg/config"
	"github.com/lumina-data/lumina-engine/pkg/crypto"
	"github.com/lumina-data/lumina-engine/pkg/datasource"
	"github.com/lumina-data/lumina-engine/pkg/llm"
	"github.com/lumina-data/lumina-engine/pkg/models"
	"github.com/lumina-data/lumina-engine/pkg/vector"
)

type agentHarness struct {
	svc      AgentService
	mock     *llm.MockLLMClient
	chatRepo *fakeChatRepository
	vectors  *fakeVectorIndex
	executor *fakeExecutor
	conn     *models.Connection
}

func newAgentHarness(t *testing.T) *agentHarness {
	t.Helper()

	encryptor, err := crypto.NewCredentialEncryptor("test-passphrase-for-agent")
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}
	encrypted, err := encryptor.Encrypt("target-password")
	if err != nil {
		t.Fatalf("failed to encrypt password: %v", err)
	}

	connRepo := newFakeConnectionRepository()
	conn := &models.Connection{
		Name:              "warehouse",
		Host:              "db.example.com",
		Port:              5432,
		User:              "analyst",
		EncryptedPassword: encrypted,
		Database:          "warehouse",
		SSLMode:           "require",
		Status:            models.ConnectionStatusReady,
	}
	if err := connRepo.Create(context.Background(), conn); err != nil {
		t.Fatalf("failed to seed connection: %v", err)
	}

	vectors := newFakeVectorIndex()
	vectors.matches = []vector.TableMatch{
		{SchemaName: "public", TableName: "orders", Document: "# Table: public.orders", Score: 0.9},
	}

	executor := &fakeExecutor{
		result: &datasource.QueryResult{
			Columns:  []string{"status", "count"},
			Rows:     []map[string]any{{"status": "shipped", "count": int64(42)}},
			RowCount: 1,
		},
	}

	mock := llm.NewMockLLMClient()
	chatRepo := newFakeChatRepository()

	svc := NewAgentService(
		config.AnalysisConfig{
			MaxQueryRows:        100,
			QueryTimeoutSeconds: 5,
			SearchLimit:         5,
			ChatConcurrency:     2,
			HistoryLimit:        10,
		},
		0.1,
		connRepo,
		chatRepo,
		vectors,
		mock,
		encryptor,
		func(ctx context.Context, params *datasource.ConnParams) (datasource.Executor, error) {
			if params.Password != "target-password" {
				return nil, fmt.Errorf("wrong password decrypted")
			}
			return executor, nil
		},
		zap.NewNop(),
	)

	return &agentHarness{
		svc:      svc,
		mock:     mock,
		chatRepo: chatRepo,
		vectors:  vectors,
		executor: executor,
		conn:     conn,
	}
}

// scriptedResponses answers intent, generation, and explanation calls in order
// by inspecting the prompt.
func scriptedResponses(intent, sql, explanation string) func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
	return func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		switch {
		case strings.Contains(prompt, "# Question Understanding"):
			return intent, nil
		case strings.Contains(prompt, "# SQL Generation"):
			return "```sql\n" + sql + "\n```", nil
		case strings.Contains(prompt, "# Result Explanation"):
			return explanation, nil
		default:
			return "", fmt.Errorf("unexpected prompt")
		}
	}
}

func TestAgent_GreetingShortCircuits(t *testing.T) {
	h := newAgentHarness(t)

	resp, err := h.svc.Ask(context.Background(), &AskRequest{
		ConnectionID: h.conn.ID,
		Question:     "Hello!",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if h.mock.GenerateResponseCalls != 0 {
		t.Errorf("greeting must not call the LLM, got %d calls", h.mock.GenerateResponseCalls)
	}
	if resp.SQL != nil {
		t.Error("greeting must not produce SQL")
	}
	if resp.Response == "" {
		t.Error("expected a canned greeting response")
	}

	msgs, _ := h.chatRepo.ListMessages(context.Background(), resp.SessionID, 0)
	if len(msgs) != 2 {
		t.Errorf("expected user and assistant messages persisted, got %d", len(msgs))
	}
}

func TestAgent_FullTurnWithExplanation(t *testing.T) {
	h := newAgentHarness(t)
	h.mock.GenerateResponseFunc = scriptedResponses(
		"How many orders are in each status?",
		"SELECT status, COUNT(*) AS count FROM orders GROUP BY status",
		"Most orders are shipped: 42 in total.",
	)

	resp, err := h.svc.Ask(context.Background(), &AskRequest{
		ConnectionID: h.conn.ID,
		Question:     "how many orders per status?",
		ExplainMode:  true,
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if resp.Error != nil {
		t.Fatalf("unexpected turn error: %s", *resp.Error)
	}
	if resp.SQL == nil || !strings.Contains(*resp.SQL, "GROUP BY status") {
		t.Errorf("expected generated SQL on response, got %v", resp.SQL)
	}
	if resp.RowCount != 1 || len(resp.Rows) != 1 {
		t.Errorf("expected result rows on response, got %d rows", len(resp.Rows))
	}
	if resp.Explanation == nil || !strings.Contains(*resp.Explanation, "42") {
		t.Errorf("expected explanation, got %v", resp.Explanation)
	}
	if resp.Response != *resp.Explanation {
		t.Error("explain mode should answer with the explanation")
	}

	if len(h.executor.ran) != 1 {
		t.Fatalf("expected exactly one query execution, got %d", len(h.executor.ran))
	}

	records, _ := h.chatRepo.ListQueries(context.Background(), h.conn.ID, 0)
	if len(records) != 1 {
		t.Fatalf("expected query history record, got %d", len(records))
	}
	if records[0].Question != "how many orders per status?" {
		t.Errorf("unexpected recorded question: %s", records[0].Question)
	}
}

func TestAgent_CSVModeWithoutExplanation(t *testing.T) {
	h := newAgentHarness(t)
	h.mock.GenerateResponseFunc = scriptedResponses(
		"orders per status",
		"SELECT status, COUNT(*) AS count FROM orders GROUP BY status",
		"should not be called",
	)

	resp, err := h.svc.Ask(context.Background(), &AskRequest{
		ConnectionID: h.conn.ID,
		Question:     "how many orders per status?",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if resp.Explanation != nil {
		t.Error("explanation must be skipped when explain mode is off")
	}
	if !strings.Contains(resp.Response, "status,count") || !strings.Contains(resp.Response, "shipped,42") {
		t.Errorf("expected CSV body, got %q", resp.Response)
	}
}

func TestAgent_UnsafeSQLIsNeverExecuted(t *testing.T) {
	h := newAgentHarness(t)
	h.mock.GenerateResponseFunc = scriptedResponses(
		"remove orders",
		"DELETE FROM orders",
		"",
	)

	resp, err := h.svc.Ask(context.Background(), &AskRequest{
		ConnectionID: h.conn.ID,
		Question:     "delete all orders please",
	})
	if err != nil {
		t.Fatalf("Ask must not fail the turn: %v", err)
	}

	if resp.Error == nil {
		t.Fatal("expected a turn-level error for unsafe SQL")
	}
	if resp.SQL != nil {
		t.Error("rejected SQL must not appear on the response")
	}
	if len(h.executor.ran) != 0 {
		t.Errorf("unsafe SQL reached the executor: %v", h.executor.ran)
	}

	msgs, _ := h.chatRepo.ListMessages(context.Background(), resp.SessionID, 0)
	if len(msgs) != 2 {
		t.Errorf("failed turns must still be persisted, got %d messages", len(msgs))
	}
}

func TestAgent_RetrievalFailureIsTurnError(t *testing.T) {
	h := newAgentHarness(t)
	h.vectors.searchErr = fmt.Errorf("%w: qdrant unreachable", apperrors.ErrRetrievalUnavailable)

	resp, err := h.svc.Ask(context.Background(), &AskRequest{
		ConnectionID: h.conn.ID,
		Question:     "how many orders per status?",
	})
	if err != nil {
		t.Fatalf("retrieval outage must not fail the turn: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected a turn-level error")
	}
	if len(h.executor.ran) != 0 {
		t.Error("nothing should execute when retrieval fails")
	}
}

func TestAgent_NoMatchesIsTurnError(t *testing.T) {
	h := newAgentHarness(t)
	h.vectors.matches = nil
	h.mock.GenerateResponseFunc = scriptedResponses("anything", "SELECT 1", "")

	resp, err := h.svc.Ask(context.Background(), &AskRequest{
		ConnectionID: h.conn.ID,
		Question:     "what color is the sky?",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected a turn-level error when no tables match")
	}
}

func TestAgent_ExecutionFailureIsTurnError(t *testing.T) {
	h := newAgentHarness(t)
	h.executor.err = fmt.Errorf("%w: relation does not exist", apperrors.ErrQueryExecution)
	h.mock.GenerateResponseFunc = scriptedResponses(
		"orders per status",
		"SELECT status FROM orders_typo",
		"",
	)

	resp, err := h.svc.Ask(context.Background(), &AskRequest{
		ConnectionID: h.conn.ID,
		Question:     "how many orders per status?",
	})
	if err != nil {
		t.Fatalf("execution failure must not fail the turn: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected a turn-level error")
	}
	if !strings.Contains(*resp.Error, "relation does not exist") {
		t.Errorf("expected execution cause in error, got %s", *resp.Error)
	}

	// Failed executions still land in query history.
	records, _ := h.chatRepo.ListQueries(context.Background(), h.conn.ID, 0)
	if len(records) != 1 || records[0].Error == nil {
		t.Errorf("expected failed query recorded with error, got %v", records)
	}
}

func TestAgent_IntentFailureFallsBackToQuestion(t *testing.T) {
	h := newAgentHarness(t)
	h.mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		if strings.Contains(prompt, "# Question Understanding") {
			return "", fmt.Errorf("model unavailable")
		}
		if strings.Contains(prompt, "# SQL Generation") {
			if !strings.Contains(prompt, "how many orders per status?") {
				return "", fmt.Errorf("generation prompt missing verbatim question")
			}
			return "```sql\nSELECT status FROM orders\n```", nil
		}
		return "", nil
	}

	resp, err := h.svc.Ask(context.Background(), &AskRequest{
		ConnectionID: h.conn.ID,
		Question:     "how many orders per status?",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("intent failure must degrade, not fail the turn: %s", *resp.Error)
	}
}

func TestAgent_NotReadyConnectionIsInfraError(t *testing.T) {
	h := newAgentHarness(t)
	pending := &models.Connection{Status: models.ConnectionStatusPending, EncryptedPassword: h.conn.EncryptedPassword}
	connRepo := h.svc.(*agentService).connRepo
	if err := connRepo.Create(context.Background(), pending); err != nil {
		t.Fatalf("failed to seed pending connection: %v", err)
	}

	_, err := h.svc.Ask(context.Background(), &AskRequest{
		ConnectionID: pending.ID,
		Question:     "anything",
	})
	if !errors.Is(err, apperrors.ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestAgent_SessionContinuity(t *testing.T) {
	h := newAgentHarness(t)
	h.mock.GenerateResponseFunc = scriptedResponses(
		"orders per status",
		"SELECT status FROM orders",
		"",
	)

	first, err := h.svc.Ask(context.Background(), &AskRequest{
		ConnectionID: h.conn.ID,
		Question:     "how many orders per status?",
	})
	if err != nil {
		t.Fatalf("first Ask failed: %v", err)
	}

	second, err := h.svc.Ask(context.Background(), &AskRequest{
		ConnectionID: h.conn.ID,
		SessionID:    &first.SessionID,
		Question:     "and how many of those shipped?",
	})
	if err != nil {
		t.Fatalf("second Ask failed: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Error("expected the session to continue")
	}

	msgs, _ := h.chatRepo.ListMessages(context.Background(), first.SessionID, 0)
	if len(msgs) != 4 {
		t.Errorf("expected 4 messages across two turns, got %d", len(msgs))
	}
}

func TestAgent_ShareSession(t *testing.T) {
	h := newAgentHarness(t)
	h.mock.GenerateResponseFunc = scriptedResponses("q", "SELECT status FROM orders", "")

	resp, err := h.svc.Ask(context.Background(), &AskRequest{
		ConnectionID: h.conn.ID,
		Question:     "how many orders per status?",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	token, err := h.svc.ShareSession(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatalf("ShareSession failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty share token")
	}

	msgs, err := h.svc.GetSharedHistory(context.Background(), token)
	if err != nil {
		t.Fatalf("GetSharedHistory failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("expected shared transcript of 2 messages, got %d", len(msgs))
	}

	if _, err := h.svc.GetSharedHistory(context.Background(), "bogus-token"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown token, got %v", err)
	}
}
