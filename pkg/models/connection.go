package models

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionStatus represents the lifecycle state of a database connection.
// State machine:
//
//	pending → analyzing → indexing → ready
//	ready → updating → ready (re-analysis)
//	error → analyzing (retry)
//
//	analyzing, indexing, updating can transition to: error
type ConnectionStatus string

const (
	ConnectionStatusPending   ConnectionStatus = "pending"
	ConnectionStatusAnalyzing ConnectionStatus = "analyzing"
	ConnectionStatusIndexing  ConnectionStatus = "indexing"
	ConnectionStatusReady     ConnectionStatus = "ready"
	ConnectionStatusError     ConnectionStatus = "error"
	ConnectionStatusUpdating  ConnectionStatus = "updating"
)

// ValidConnectionStatuses contains all valid status values.
var ValidConnectionStatuses = []ConnectionStatus{
	ConnectionStatusPending,
	ConnectionStatusAnalyzing,
	ConnectionStatusIndexing,
	ConnectionStatusReady,
	ConnectionStatusError,
	ConnectionStatusUpdating,
}

// IsValidConnectionStatus checks if the given status is valid.
func IsValidConnectionStatus(s ConnectionStatus) bool {
	for _, v := range ValidConnectionStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsActiveRun returns true while an analysis run holds the connection.
// A connection in an active-run status cannot start another run.
func (s ConnectionStatus) IsActiveRun() bool {
	return s == ConnectionStatusAnalyzing || s == ConnectionStatusIndexing || s == ConnectionStatusUpdating
}

// CanTransitionTo returns true if transitioning from this status to the target is valid.
func (s ConnectionStatus) CanTransitionTo(target ConnectionStatus) bool {
	switch s {
	case ConnectionStatusPending:
		return target == ConnectionStatusAnalyzing
	case ConnectionStatusAnalyzing:
		return target == ConnectionStatusIndexing || target == ConnectionStatusError
	case ConnectionStatusIndexing:
		return target == ConnectionStatusReady || target == ConnectionStatusError
	case ConnectionStatusReady:
		return target == ConnectionStatusUpdating
	case ConnectionStatusUpdating:
		return target == ConnectionStatusReady || target == ConnectionStatusError
	case ConnectionStatusError:
		return target == ConnectionStatusAnalyzing
	default:
		return false
	}
}

// ClaimTarget returns the status an analysis run should claim from this state,
// or false when a run cannot start.
func (s ConnectionStatus) ClaimTarget() (ConnectionStatus, bool) {
	switch s {
	case ConnectionStatusPending, ConnectionStatusError:
		return ConnectionStatusAnalyzing, true
	case ConnectionStatusReady:
		return ConnectionStatusUpdating, true
	default:
		return "", false
	}
}

// Connection is a registered target database plus its analysis lifecycle state.
type Connection struct {
	ID                uuid.UUID        `json:"id"`
	Name              string           `json:"name"`
	Host              string           `json:"host"`
	Port              int              `json:"port"`
	User              string           `json:"user"`
	EncryptedPassword string           `json:"-"`
	Database          string           `json:"database"`
	SSLMode           string           `json:"ssl_mode"`
	Status            ConnectionStatus `json:"status"`
	Progress          float64          `json:"progress"`
	StatusMessage     *string          `json:"status_message,omitempty"`
	LastAnalyzedAt    *time.Time       `json:"last_analyzed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}
