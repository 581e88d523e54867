// Package apperrors defines sentinel errors shared across services.
package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrRunActive              = errors.New("analysis run already active for connection")
	ErrNotReady               = errors.New("connection is not ready")
	ErrConnectivity           = errors.New("cannot reach target database")
	ErrExtraction             = errors.New("schema extraction failed")
	ErrIndexing               = errors.New("insight indexing failed")
	ErrRetrievalUnavailable   = errors.New("table retrieval unavailable")
	ErrUnsafeQuery            = errors.New("generated query rejected as unsafe")
	ErrQueryExecution         = errors.New("query execution failed")
	ErrCredentialsKeyMismatch = errors.New("connection credentials were encrypted with a different key")
)

// Truncate shortens a message to at most n runes for storage in status columns.
func Truncate(msg string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(msg)
	if len(runes) <= n {
		return msg
	}
	return string(runes[:n-3]) + "..."
}
