package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumina-data/lumina-engine/pkg/apperrors"
	"github.com/lumina-data/lumina-engine/pkg/database"
	"github.com/lumina-data/lumina-engine/pkg/models"
)

// ChatRepository defines the interface for chat session and history data access.
type ChatRepository interface {
	CreateSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)
	GetSessionByToken(ctx context.Context, token string) (*models.ChatSession, error)
	ListSessions(ctx context.Context, connectionID uuid.UUID) ([]*models.ChatSession, error)
	SetShareToken(ctx context.Context, sessionID uuid.UUID, token *string) error

	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.ChatMessage, error)

	RecordQuery(ctx context.Context, record *models.QueryRecord) error
	ListQueries(ctx context.Context, connectionID uuid.UUID, limit int) ([]*models.QueryRecord, error)
}

// chatRepository implements ChatRepository using PostgreSQL.
type chatRepository struct {
	db *database.DB
}

// NewChatRepository creates a new chat repository.
func NewChatRepository(db *database.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateSession(ctx context.Context, session *models.ChatSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	query := `
		INSERT INTO chat_sessions (id, connection_id, title, share_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.ConnectionID,
		session.Title,
		session.ShareToken,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat session: %w", err)
	}

	return nil
}

func (r *chatRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	query := `
		SELECT id, connection_id, title, share_token, created_at, updated_at, last_active_at
		FROM chat_sessions
		WHERE id = $1`

	session, err := scanChatSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}

	return session, nil
}

func (r *chatRepository) GetSessionByToken(ctx context.Context, token string) (*models.ChatSession, error) {
	query := `
		SELECT id, connection_id, title, share_token, created_at, updated_at, last_active_at
		FROM chat_sessions
		WHERE share_token = $1`

	session, err := scanChatSession(r.db.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat session by token: %w", err)
	}

	return session, nil
}

func (r *chatRepository) ListSessions(ctx context.Context, connectionID uuid.UUID) ([]*models.ChatSession, error) {
	query := `
		SELECT id, connection_id, title, share_token, created_at, updated_at, last_active_at
		FROM chat_sessions
		WHERE connection_id = $1
		ORDER BY COALESCE(last_active_at, created_at) DESC`

	rows, err := r.db.Query(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.ChatSession
	for rows.Next() {
		session, err := scanChatSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// SetShareToken publishes or revokes (token = nil) read-only access to a session.
func (r *chatRepository) SetShareToken(ctx context.Context, sessionID uuid.UUID, token *string) error {
	query := `UPDATE chat_sessions SET share_token = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, sessionID, token)
	if err != nil {
		return fmt.Errorf("failed to set share token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *chatRepository) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.CreatedAt = time.Now()

	query := `
		INSERT INTO chat_messages (id, session_id, role, content, sql_text, explanation, data, row_count, duration_ms, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		msg.ID,
		msg.SessionID,
		msg.Role,
		msg.Content,
		msg.SQL,
		msg.Explanation,
		msg.Data,
		msg.RowCount,
		msg.DurationMs,
		msg.Error,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}

	_, err = r.db.Exec(ctx, `UPDATE chat_sessions SET last_active_at = $2, updated_at = $2 WHERE id = $1`,
		msg.SessionID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to touch chat session: %w", err)
	}

	return nil
}

// ListMessages returns the most recent messages in chronological order.
// limit <= 0 means no limit.
func (r *chatRepository) ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, session_id, role, content, sql_text, explanation, data, row_count, duration_ms, error, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Fetched newest-first for the LIMIT; callers want oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *chatRepository) RecordQuery(ctx context.Context, record *models.QueryRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = time.Now()

	query := `
		INSERT INTO query_history (id, connection_id, session_id, question, sql_text, row_count, duration_ms, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.ConnectionID,
		record.SessionID,
		record.Question,
		record.SQL,
		record.RowCount,
		record.DurationMs,
		record.Error,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record query: %w", err)
	}

	return nil
}

func (r *chatRepository) ListQueries(ctx context.Context, connectionID uuid.UUID, limit int) ([]*models.QueryRecord, error) {
	query := `
		SELECT id, connection_id, session_id, question, sql_text, row_count, duration_ms, error, created_at
		FROM query_history
		WHERE connection_id = $1
		ORDER BY created_at DESC`
	args := []any{connectionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list query history: %w", err)
	}
	defer rows.Close()

	var records []*models.QueryRecord
	for rows.Next() {
		var rec models.QueryRecord
		err := rows.Scan(
			&rec.ID,
			&rec.ConnectionID,
			&rec.SessionID,
			&rec.Question,
			&rec.SQL,
			&rec.RowCount,
			&rec.DurationMs,
			&rec.Error,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query record: %w", err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

func scanChatSession(row pgx.Row) (*models.ChatSession, error) {
	var session models.ChatSession
	err := row.Scan(
		&session.ID,
		&session.ConnectionID,
		&session.Title,
		&session.ShareToken,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.LastActiveAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func scanChatMessage(row pgx.Row) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	err := row.Scan(
		&msg.ID,
		&msg.SessionID,
		&msg.Role,
		&msg.Content,
		&msg.SQL,
		&msg.Explanation,
		&msg.Data,
		&msg.RowCount,
		&msg.DurationMs,
		&msg.Error,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
