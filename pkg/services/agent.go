package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lumina-data/lumina-engine/pkg/apperrors"
	"github.com/lumina-data/lumina-engine/pkg/config"
	"github.com/lumina-data/lumina-engine/pkg/crypto"
	"github.com/lumina-data/lumina-engine/pkg/datasource"
	"github.com/lumina-data/lumina-engine/pkg/llm"
	"github.com/lumina-data/lumina-engine/pkg/logging"
	"github.com/lumina-data/lumina-engine/pkg/models"
	"github.com/lumina-data/lumina-engine/pkg/prompts"
	"github.com/lumina-data/lumina-engine/pkg/repositories"
	"github.com/lumina-data/lumina-engine/pkg/sqlguard"
	"github.com/lumina-data/lumina-engine/pkg/vector"
)

// ExecutorFactory opens a read-only query executor against a target database.
type ExecutorFactory func(ctx context.Context, params *datasource.ConnParams) (datasource.Executor, error)

// AskRequest is one conversational turn against an analyzed connection.
type AskRequest struct {
	ConnectionID uuid.UUID
	// SessionID continues an existing session; nil starts a new one.
	SessionID *uuid.UUID
	Question  string
	// ExplainMode adds a plain-language explanation of the results. When off,
	// the response body carries the raw results as CSV.
	ExplainMode bool
}

// AgentService answers natural-language questions by generating and executing
// SQL against the connection's database. Turn-level failures (unsafe SQL,
// execution errors, retrieval outages) come back inside the ChatResponse;
// only infrastructure problems (unknown connection, connection not analyzed)
// surface as Go errors.
type AgentService interface {
	Ask(ctx context.Context, req *AskRequest) (*models.ChatResponse, error)

	ListSessions(ctx context.Context, connectionID uuid.UUID) ([]*models.ChatSession, error)
	GetHistory(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error)
	// ShareSession mints a share token granting tokenized read access.
	ShareSession(ctx context.Context, sessionID uuid.UUID) (string, error)
	// GetSharedHistory resolves a share token to its session transcript.
	GetSharedHistory(ctx context.Context, token string) ([]*models.ChatMessage, error)
}

type agentService struct {
	config      config.AnalysisConfig
	temperature float64
	connRepo    repositories.ConnectionRepository
	chatRepo    repositories.ChatRepository
	vectorIndex VectorIndex
	llm         llm.LLMClient
	encryptor   *crypto.CredentialEncryptor
	newExecutor ExecutorFactory
	logger      *zap.Logger

	// Per-connection execution throttles, created on first use.
	mu         sync.Mutex
	semaphores map[uuid.UUID]*semaphore.Weighted
}

// NewAgentService creates an agent service.
func NewAgentService(
	cfg config.AnalysisConfig,
	temperature float64,
	connRepo repositories.ConnectionRepository,
	chatRepo repositories.ChatRepository,
	vectorIndex VectorIndex,
	client llm.LLMClient,
	encryptor *crypto.CredentialEncryptor,
	newExecutor ExecutorFactory,
	logger *zap.Logger,
) AgentService {
	return &agentService{
		config:      cfg,
		temperature: temperature,
		connRepo:    connRepo,
		chatRepo:    chatRepo,
		vectorIndex: vectorIndex,
		llm:         client,
		encryptor:   encryptor,
		newExecutor: newExecutor,
		logger:      logger.Named("agent"),
		semaphores:  make(map[uuid.UUID]*semaphore.Weighted),
	}
}

var _ AgentService = (*agentService)(nil)

// agentTurn is the mutable state threaded through one Ask pipeline.
type agentTurn struct {
	conn     *models.Connection
	session  *models.ChatSession
	question string
	explain  bool
	started  time.Time

	intent      string
	matches     []vector.TableMatch
	sql         string
	result      *datasource.QueryResult
	explanation string
}

func (s *agentService) Ask(ctx context.Context, req *AskRequest) (*models.ChatResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("question must not be empty")
	}

	conn, err := s.connRepo.Get(ctx, req.ConnectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status != models.ConnectionStatusReady && conn.Status != models.ConnectionStatusUpdating {
		return nil, fmt.Errorf("%w: connection is %s", apperrors.ErrNotReady, conn.Status)
	}

	session, err := s.resolveSession(ctx, conn, req.SessionID, question)
	if err != nil {
		return nil, err
	}

	turn := &agentTurn{
		conn:     conn,
		session:  session,
		question: question,
		explain:  req.ExplainMode,
		started:  time.Now(),
	}

	if isGreeting(question) {
		return s.respond(ctx, turn, greetingResponse, nil)
	}

	s.understand(ctx, turn)

	if err := s.retrieve(ctx, turn); err != nil {
		return s.respond(ctx, turn, "I couldn't search the schema index right now. Please try again shortly.", err)
	}
	if len(turn.matches) == 0 {
		return s.respond(ctx, turn, "I couldn't find any tables related to your question on this connection.",
			fmt.Errorf("no relevant tables found"))
	}

	if err := s.generate(ctx, turn); err != nil {
		turn.sql = "" // never expose rejected SQL as executable
		return s.respond(ctx, turn, "I couldn't produce a safe read-only query for that question.", err)
	}

	if err := s.execute(ctx, turn); err != nil {
		return s.respond(ctx, turn, "The generated query failed against your database.", err)
	}

	s.explainResults(ctx, turn)

	body := turn.explanation
	if body == "" {
		body = renderCSV(turn.result)
	}
	return s.respond(ctx, turn, body, nil)
}

// understand rewrites the question into a self-contained intent using recent
// history. Failures fall back to the verbatim question.
func (s *agentService) understand(ctx context.Context, turn *agentTurn) {
	turn.intent = turn.question

	history, err := s.chatRepo.ListMessages(ctx, turn.session.ID, s.config.HistoryLimit)
	if err != nil {
		s.logger.Warn("Failed to load history for intent extraction", zap.Error(err))
		history = nil
	}
	entries := make([]prompts.HistoryEntry, 0, len(history))
	for _, msg := range history {
		entries = append(entries, prompts.HistoryEntry{Role: string(msg.Role), Content: msg.Content})
	}

	response, err := s.llm.GenerateResponse(ctx,
		prompts.IntentPrompt(turn.question, entries),
		prompts.IntentSystemMessage(),
		s.temperature)
	if err != nil {
		s.logger.Warn("Intent extraction failed, using question verbatim", zap.Error(err))
		return
	}

	intent := strings.TrimSpace(llm.StripThinkTags(response))
	if intent != "" {
		turn.intent = intent
	}
}

func (s *agentService) retrieve(ctx context.Context, turn *agentTurn) error {
	matches, err := s.vectorIndex.Search(ctx, turn.intent, turn.conn.ID, s.config.SearchLimit)
	if err != nil {
		return err
	}
	turn.matches = matches
	return nil
}

// generate produces exactly one validated read-only statement or an error.
func (s *agentService) generate(ctx context.Context, turn *agentTurn) error {
	docs := make([]prompts.TableDocument, len(turn.matches))
	for i, m := range turn.matches {
		docs[i] = prompts.TableDocument{
			SchemaName: m.SchemaName,
			TableName:  m.TableName,
			Document:   m.Document,
		}
	}

	response, err := s.llm.GenerateResponse(ctx,
		prompts.SQLGenerationPrompt(turn.question, turn.intent, docs),
		prompts.SQLGenerationSystemMessage(),
		s.temperature)
	if err != nil {
		return fmt.Errorf("failed to generate SQL: %w", err)
	}

	sql := sqlguard.ExtractSQL(response)
	if sql == "" {
		return fmt.Errorf("%w: model returned no SQL statement", apperrors.ErrUnsafeQuery)
	}
	if err := sqlguard.ValidateReadOnly(sql); err != nil {
		return err
	}

	turn.sql = sql
	return nil
}

// execute runs the validated SQL under the connection's concurrency throttle,
// row cap, and query timeout.
func (s *agentService) execute(ctx context.Context, turn *agentTurn) error {
	sem := s.semaphoreFor(turn.conn.ID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrQueryExecution, err)
	}
	defer sem.Release(1)

	password, err := s.encryptor.Decrypt(turn.conn.EncryptedPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrCredentialsKeyMismatch, err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(s.config.QueryTimeoutSeconds)*time.Second)
	defer cancel()

	executor, err := s.newExecutor(queryCtx, &datasource.ConnParams{
		Host:     turn.conn.Host,
		Port:     turn.conn.Port,
		User:     turn.conn.User,
		Password: password,
		Database: turn.conn.Database,
		SSLMode:  turn.conn.SSLMode,
	})
	if err != nil {
		return err
	}
	defer executor.Close()

	s.logger.Debug("Executing generated query",
		zap.String("connection_id", turn.conn.ID.String()),
		zap.String("query", logging.SanitizeQuery(turn.sql)))

	result, err := executor.Query(queryCtx, turn.sql, s.config.MaxQueryRows)
	if err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrQueryExecution, logging.SanitizeError(err))
	}

	turn.result = result
	return nil
}

// explainResults is best-effort: an explanation failure degrades to the CSV
// rendering rather than failing the turn.
func (s *agentService) explainResults(ctx context.Context, turn *agentTurn) {
	if !turn.explain || turn.result == nil {
		return
	}

	sample := renderCSVSample(turn.result, 10)
	response, err := s.llm.GenerateResponse(ctx,
		prompts.ExplanationPrompt(turn.question, turn.sql, turn.result.Columns, turn.result.RowCount, sample),
		prompts.ExplanationSystemMessage(),
		s.temperature)
	if err != nil {
		s.logger.Warn("Explanation failed, returning raw results", zap.Error(err))
		return
	}

	turn.explanation = strings.TrimSpace(llm.StripThinkTags(response))
}

// respond assembles the ChatResponse and persists the turn: both chat
// messages, and a query-history record when SQL was involved.
func (s *agentService) respond(ctx context.Context, turn *agentTurn, body string, turnErr error) (*models.ChatResponse, error) {
	durationMs := time.Since(turn.started).Milliseconds()

	resp := &models.ChatResponse{
		SessionID:  turn.session.ID,
		Response:   body,
		DurationMs: durationMs,
	}
	if turnErr != nil {
		msg := apperrors.Truncate(turnErr.Error(), 500)
		resp.Error = &msg
	}
	if turn.sql != "" {
		resp.SQL = &turn.sql
	}
	if turn.explanation != "" {
		resp.Explanation = &turn.explanation
	}
	if turn.result != nil {
		resp.Columns = turn.result.Columns
		resp.Rows = turn.result.Rows
		resp.RowCount = turn.result.RowCount
		resp.Truncated = turn.result.Truncated
	}

	s.persistTurn(ctx, turn, resp)
	return resp, nil
}

func (s *agentService) persistTurn(ctx context.Context, turn *agentTurn, resp *models.ChatResponse) {
	userMsg := &models.ChatMessage{
		SessionID: turn.session.ID,
		Role:      models.MessageRoleUser,
		Content:   turn.question,
	}
	if err := s.chatRepo.AppendMessage(ctx, userMsg); err != nil {
		s.logger.Warn("Failed to persist user message", zap.Error(err))
	}

	assistantMsg := &models.ChatMessage{
		SessionID:   turn.session.ID,
		Role:        models.MessageRoleAssistant,
		Content:     resp.Response,
		SQL:         resp.SQL,
		Explanation: resp.Explanation,
		Error:       resp.Error,
	}
	if turn.result != nil {
		rowCount := turn.result.RowCount
		assistantMsg.RowCount = &rowCount
		assistantMsg.DurationMs = &resp.DurationMs
		if data, err := json.Marshal(turn.result.Rows); err == nil {
			assistantMsg.Data = data
		}
	}
	if err := s.chatRepo.AppendMessage(ctx, assistantMsg); err != nil {
		s.logger.Warn("Failed to persist assistant message", zap.Error(err))
	}

	if turn.sql == "" {
		return
	}
	record := &models.QueryRecord{
		ConnectionID: turn.conn.ID,
		SessionID:    turn.session.ID,
		Question:     turn.question,
		SQL:          turn.sql,
		DurationMs:   resp.DurationMs,
		Error:        resp.Error,
	}
	if turn.result != nil {
		record.RowCount = turn.result.RowCount
	}
	if err := s.chatRepo.RecordQuery(ctx, record); err != nil {
		s.logger.Warn("Failed to record query history", zap.Error(err))
	}
}

func (s *agentService) resolveSession(ctx context.Context, conn *models.Connection, sessionID *uuid.UUID, question string) (*models.ChatSession, error) {
	if sessionID != nil {
		session, err := s.chatRepo.GetSession(ctx, *sessionID)
		if err != nil {
			return nil, err
		}
		if session.ConnectionID != conn.ID {
			return nil, fmt.Errorf("%w: session belongs to another connection", apperrors.ErrNotFound)
		}
		return session, nil
	}

	session := &models.ChatSession{
		ConnectionID: conn.ID,
		Title:        apperrors.Truncate(question, 80),
	}
	if err := s.chatRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *agentService) semaphoreFor(connectionID uuid.UUID) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.semaphores[connectionID]
	if !ok {
		sem = semaphore.NewWeighted(int64(s.config.ChatConcurrency))
		s.semaphores[connectionID] = sem
	}
	return sem
}

func (s *agentService) ListSessions(ctx context.Context, connectionID uuid.UUID) ([]*models.ChatSession, error) {
	return s.chatRepo.ListSessions(ctx, connectionID)
}

func (s *agentService) GetHistory(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error) {
	if _, err := s.chatRepo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.chatRepo.ListMessages(ctx, sessionID, 0)
}

func (s *agentService) ShareSession(ctx context.Context, sessionID uuid.UUID) (string, error) {
	if _, err := s.chatRepo.GetSession(ctx, sessionID); err != nil {
		return "", err
	}
	token := uuid.NewString()
	if err := s.chatRepo.SetShareToken(ctx, sessionID, &token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *agentService) GetSharedHistory(ctx context.Context, token string) ([]*models.ChatMessage, error) {
	session, err := s.chatRepo.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.chatRepo.ListMessages(ctx, session.ID, 0)
}

const greetingResponse = "Hello! Ask me anything about the data in this connection and I'll answer with a query."

var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true, "hiya": true,
	"good morning": true, "good afternoon": true, "good evening": true,
	"thanks": true, "thank you": true, "how are you": true,
}

// isGreeting catches pure small talk so we never burn retrieval and
// generation on it.
func isGreeting(question string) bool {
	normalized := strings.ToLower(strings.TrimRight(strings.TrimSpace(question), "!?. "))
	return greetings[normalized]
}

func renderCSV(result *datasource.QueryResult) string {
	return renderCSVSample(result, len(result.Rows))
}

// renderCSVSample renders up to maxRows result rows as CSV, header included.
func renderCSVSample(result *datasource.QueryResult, maxRows int) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write(result.Columns)
	for i, row := range result.Rows {
		if i >= maxRows {
			break
		}
		record := make([]string, len(result.Columns))
		for j, col := range result.Columns {
			record[j] = formatValue(row[col])
		}
		_ = w.Write(record)
	}
	w.Flush()

	return strings.TrimRight(sb.String(), "\n")
}

func formatValue(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}
