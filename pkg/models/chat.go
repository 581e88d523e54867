package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ChatSession groups the messages of one conversation against a connection.
// ShareToken, when set, allows read-only access to the session without auth.
type ChatSession struct {
	ID           uuid.UUID  `json:"id"`
	ConnectionID uuid.UUID  `json:"connection_id"`
	Title        string     `json:"title"`
	ShareToken   *string    `json:"share_token,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
}

// ChatMessage is one turn of a conversation, persisted with any SQL artifacts.
type ChatMessage struct {
	ID          uuid.UUID   `json:"id"`
	SessionID   uuid.UUID   `json:"session_id"`
	Role        MessageRole `json:"role"`
	Content     string      `json:"content"`
	SQL         *string     `json:"sql,omitempty"`
	Explanation *string     `json:"explanation,omitempty"`
	Data        []byte      `json:"-"` // JSON-encoded result rows
	RowCount    *int        `json:"row_count,omitempty"`
	DurationMs  *int64      `json:"duration_ms,omitempty"`
	Error       *string     `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// QueryRecord is the audit trail for one executed (or rejected) generated query.
type QueryRecord struct {
	ID           uuid.UUID `json:"id"`
	ConnectionID uuid.UUID `json:"connection_id"`
	SessionID    uuid.UUID `json:"session_id"`
	Question     string    `json:"question"`
	SQL          string    `json:"sql"`
	RowCount     int       `json:"row_count"`
	DurationMs   int64     `json:"duration_ms"`
	Error        *string   `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChatResponse is the structured answer returned from one agent turn.
// Error carries turn-level failures (unsafe SQL, execution errors); these are
// part of the response, never a Go error from Ask.
type ChatResponse struct {
	SessionID   uuid.UUID        `json:"session_id"`
	Response    string           `json:"response"`
	SQL         *string          `json:"sql,omitempty"`
	Explanation *string          `json:"explanation,omitempty"`
	Columns     []string         `json:"columns,omitempty"`
	Rows        []map[string]any `json:"rows,omitempty"`
	RowCount    int              `json:"row_count"`
	Truncated   bool             `json:"truncated"`
	DurationMs  int64            `json:"duration_ms"`
	Error       *string          `json:"error,omitempty"`
}
