package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-data/lumina-engine/pkg/services"
)

// AskRequest is the wire form of one conversational turn.
type AskRequest struct {
	ConnectionID uuid.UUID  `json:"connection_id"`
	SessionID    *uuid.UUID `json:"session_id,omitempty"`
	Question     string     `json:"question"`
	ExplainMode  bool       `json:"explain_mode"`
}

// ChatHandler exposes the conversational agent.
type ChatHandler struct {
	agent  services.AgentService
	logger *zap.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(agent services.AgentService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{agent: agent, logger: logger.Named("chat")}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.Ask)
	mux.HandleFunc("GET /api/connections/{id}/sessions", h.ListSessions)
	mux.HandleFunc("GET /api/sessions/{id}/messages", h.GetHistory)
	mux.HandleFunc("POST /api/sessions/{id}/share", h.Share)
	mux.HandleFunc("GET /api/shared/{token}", h.GetShared)
}

func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Question == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "question is required")
		return
	}

	resp, err := h.agent.Ask(r.Context(), &services.AskRequest{
		ConnectionID: req.ConnectionID,
		SessionID:    req.SessionID,
		Question:     req.Question,
		ExplainMode:  req.ExplainMode,
	})
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	sessions, err := h.agent.ListSessions(r.Context(), id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, sessions)
}

func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	messages, err := h.agent.GetHistory(r.Context(), id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, messages)
}

func (h *ChatHandler) Share(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	token, err := h.agent.ShareSession(r.Context(), id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"share_token": token})
}

func (h *ChatHandler) GetShared(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	messages, err := h.agent.GetSharedHistory(r.Context(), token)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, messages)
}
