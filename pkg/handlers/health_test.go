package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/lumina-data/lumina-engine/pkg/apperrors"
	"github.com/lumina-data/lumina-engine/pkg/config"
)

func TestHealthHandler_Health(t *testing.T) {
	cfg := &config.Config{
		Version: "test-version",
		Env:     "test",
	}
	handler := NewHealthHandler(cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %q", rec.Body.String())
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	cfg := &config.Config{
		Version: "test-version",
		Env:     "test",
	}
	handler := NewHealthHandler(cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()

	handler.Ping(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response PingResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}
	if response.Version != "test-version" {
		t.Errorf("expected version 'test-version', got '%s'", response.Version)
	}
	if response.Service != "lumina-engine" {
		t.Errorf("unexpected service name: %s", response.Service)
	}
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found maps to 404", apperrors.ErrNotFound, http.StatusNotFound},
		{"run active maps to 409", apperrors.ErrRunActive, http.StatusConflict},
		{"not ready maps to 409", apperrors.ErrNotReady, http.StatusConflict},
		{"connectivity maps to 502", apperrors.ErrConnectivity, http.StatusBadGateway},
		{"retrieval unavailable maps to 503", apperrors.ErrRetrievalUnavailable, http.StatusServiceUnavailable},
		{"unknown maps to 500", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			if err := WriteError(rec, tt.err); err != nil {
				t.Fatalf("WriteError failed: %v", err)
			}
			if rec.Code != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, rec.Code)
			}

			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body["error"] == "" {
				t.Error("expected an error code in the body")
			}
		})
	}
}
