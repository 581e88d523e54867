package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lumina-data/lumina-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteError maps service errors onto HTTP statuses.
func WriteError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrRunActive):
		return ErrorResponse(w, http.StatusConflict, "run_active", err.Error())
	case errors.Is(err, apperrors.ErrNotReady):
		return ErrorResponse(w, http.StatusConflict, "not_ready", err.Error())
	case errors.Is(err, apperrors.ErrConnectivity):
		return ErrorResponse(w, http.StatusBadGateway, "connectivity", err.Error())
	case errors.Is(err, apperrors.ErrRetrievalUnavailable):
		return ErrorResponse(w, http.StatusServiceUnavailable, "retrieval_unavailable", err.Error())
	case errors.Is(err, apperrors.ErrCredentialsKeyMismatch):
		return ErrorResponse(w, http.StatusInternalServerError, "credentials_key_mismatch", err.Error())
	default:
		return ErrorResponse(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
