package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumina-data/lumina-engine/pkg/apperrors"
	"github.com/lumina-data/lumina-engine/pkg/datasource"
	"github.com/lumina-data/lumina-engine/pkg/models"
	"github.com/lumina-data/lumina-engine/pkg/repositories"
	"github.com/lumina-data/lumina-engine/pkg/vector"
)

// fakeConnectionRepository is an in-memory ConnectionRepository honoring the
// same claim semantics as the SQL implementation.
type fakeConnectionRepository struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*models.Connection
}

func newFakeConnectionRepository() *fakeConnectionRepository {
	return &fakeConnectionRepository{conns: make(map[uuid.UUID]*models.Connection)}
}

func (r *fakeConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	if conn.Status == "" {
		conn.Status = models.ConnectionStatusPending
	}
	conn.UpdatedAt = time.Now()
	copied := *conn
	r.conns[conn.ID] = &copied
	return nil
}

func (r *fakeConnectionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *conn
	return &copied, nil
}

func (r *fakeConnectionRepository) List(ctx context.Context) ([]*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Connection
	for _, conn := range r.conns {
		copied := *conn
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeConnectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.conns, id)
	return nil
}

func (r *fakeConnectionRepository) ClaimRun(ctx context.Context, id uuid.UUID, staleAfter time.Duration) (models.ConnectionStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	target, ok := conn.Status.ClaimTarget()
	if !ok {
		if !conn.Status.IsActiveRun() || time.Since(conn.UpdatedAt) <= staleAfter {
			return "", apperrors.ErrRunActive
		}
		// Abandoned run: reclaim it the way the SQL implementation does.
		target = models.ConnectionStatusAnalyzing
		if conn.Status == models.ConnectionStatusUpdating {
			target = models.ConnectionStatusUpdating
		}
	}
	conn.Status = target
	conn.Progress = 0
	conn.StatusMessage = nil
	conn.UpdatedAt = time.Now()
	return target, nil
}

// rewindUpdatedAt ages a row, as if the process that claimed it died.
func (r *fakeConnectionRepository) rewindUpdatedAt(id uuid.UUID, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[id]; ok {
		conn.UpdatedAt = conn.UpdatedAt.Add(-d)
	}
}

func (r *fakeConnectionRepository) UpdateProgress(ctx context.Context, id uuid.UUID, status models.ConnectionStatus, progress float64, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	conn.Status = status
	if progress > conn.Progress {
		conn.Progress = progress
	}
	conn.StatusMessage = &message
	conn.UpdatedAt = time.Now()
	return nil
}

func (r *fakeConnectionRepository) MarkReady(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	now := time.Now()
	conn.Status = models.ConnectionStatusReady
	conn.Progress = 100
	conn.StatusMessage = nil
	conn.LastAnalyzedAt = &now
	conn.UpdatedAt = now
	return nil
}

func (r *fakeConnectionRepository) MarkError(ctx context.Context, id uuid.UUID, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	truncated := apperrors.Truncate(cause, 500)
	conn.Status = models.ConnectionStatusError
	conn.StatusMessage = &truncated
	conn.UpdatedAt = time.Now()
	return nil
}

var _ repositories.ConnectionRepository = (*fakeConnectionRepository)(nil)

// fakeInsightRepository keeps the latest insight set per connection.
type fakeInsightRepository struct {
	mu       sync.Mutex
	insights map[uuid.UUID][]*models.TableInsight
}

func newFakeInsightRepository() *fakeInsightRepository {
	return &fakeInsightRepository{insights: make(map[uuid.UUID][]*models.TableInsight)}
}

func (r *fakeInsightRepository) ReplaceForConnection(ctx context.Context, connectionID uuid.UUID, insights []*models.TableInsight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, insight := range insights {
		if insight.ID == uuid.Nil {
			insight.ID = uuid.New()
		}
		insight.ConnectionID = connectionID
	}
	r.insights[connectionID] = insights
	return nil
}

func (r *fakeInsightRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.TableInsight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insights[connectionID], nil
}

func (r *fakeInsightRepository) Get(ctx context.Context, id uuid.UUID) (*models.TableInsight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, set := range r.insights {
		for _, insight := range set {
			if insight.ID == id {
				return insight, nil
			}
		}
	}
	return nil, apperrors.ErrNotFound
}

var _ repositories.InsightRepository = (*fakeInsightRepository)(nil)

// fakeChatRepository is an in-memory ChatRepository.
type fakeChatRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.ChatSession
	messages map[uuid.UUID][]*models.ChatMessage
	queries  []*models.QueryRecord
}

func newFakeChatRepository() *fakeChatRepository {
	return &fakeChatRepository{
		sessions: make(map[uuid.UUID]*models.ChatSession),
		messages: make(map[uuid.UUID][]*models.ChatMessage),
	}
}

func (r *fakeChatRepository) CreateSession(ctx context.Context, session *models.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeChatRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *fakeChatRepository) GetSessionByToken(ctx context.Context, token string) (*models.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.ShareToken != nil && *session.ShareToken == token {
			copied := *session
			return &copied, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeChatRepository) ListSessions(ctx context.Context, connectionID uuid.UUID) ([]*models.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ChatSession
	for _, session := range r.sessions {
		if session.ConnectionID == connectionID {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeChatRepository) SetShareToken(ctx context.Context, sessionID uuid.UUID, token *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return apperrors.ErrNotFound
	}
	session.ShareToken = token
	return nil
}

func (r *fakeChatRepository) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.CreatedAt = time.Now()
	r.messages[msg.SessionID] = append(r.messages[msg.SessionID], msg)
	return nil
}

func (r *fakeChatRepository) ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (r *fakeChatRepository) RecordQuery(ctx context.Context, record *models.QueryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	r.queries = append(r.queries, record)
	return nil
}

func (r *fakeChatRepository) ListQueries(ctx context.Context, connectionID uuid.UUID, limit int) ([]*models.QueryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.QueryRecord
	for _, rec := range r.queries {
		if rec.ConnectionID == connectionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

var _ repositories.ChatRepository = (*fakeChatRepository)(nil)

// fakeVectorIndex records ReplaceConnection calls and serves canned matches.
type fakeVectorIndex struct {
	mu        sync.Mutex
	replaced  map[uuid.UUID][]vector.Document
	matches   []vector.TableMatch
	searchErr error
	replErr   error
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{replaced: make(map[uuid.UUID][]vector.Document)}
}

func (f *fakeVectorIndex) ReplaceConnection(ctx context.Context, connectionID uuid.UUID, docs []vector.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replErr != nil {
		return f.replErr
	}
	f.replaced[connectionID] = docs
	return nil
}

func (f *fakeVectorIndex) DeleteConnection(ctx context.Context, connectionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.replaced, connectionID)
	return nil
}

func (f *fakeVectorIndex) Search(ctx context.Context, queryText string, connectionID uuid.UUID, limit int) ([]vector.TableMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if limit < len(f.matches) {
		return f.matches[:limit], nil
	}
	return f.matches, nil
}

var _ VectorIndex = (*fakeVectorIndex)(nil)

// fakeExtractor serves fixed metadata with progress callbacks.
type fakeExtractor struct {
	metadata *datasource.DatabaseMetadata
	err      error
}

func (e *fakeExtractor) ExtractMetadata(ctx context.Context, onProgress datasource.ProgressFunc) (*datasource.DatabaseMetadata, error) {
	if e.err != nil {
		return nil, e.err
	}
	if onProgress != nil {
		for i := range e.metadata.Tables {
			onProgress(float64(i+1)/float64(len(e.metadata.Tables)),
				fmt.Sprintf("Profiled %s", e.metadata.Tables[i].TableName))
		}
	}
	return e.metadata, nil
}

func (e *fakeExtractor) Ping(ctx context.Context) error { return e.err }
func (e *fakeExtractor) Close()                         {}

var _ datasource.Extractor = (*fakeExtractor)(nil)

// fakeExecutor serves a fixed result and records the SQL it ran.
type fakeExecutor struct {
	mu     sync.Mutex
	result *datasource.QueryResult
	err    error
	ran    []string
}

func (e *fakeExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ran = append(e.ran, sqlQuery)
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func (e *fakeExecutor) Close() {}

var _ datasource.Executor = (*fakeExecutor)(nil)
