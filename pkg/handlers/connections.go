package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-data/lumina-engine/pkg/crypto"
	"github.com/lumina-data/lumina-engine/pkg/models"
	"github.com/lumina-data/lumina-engine/pkg/repositories"
	"github.com/lumina-data/lumina-engine/pkg/services"
)

// CreateConnectionRequest registers a target database.
type CreateConnectionRequest struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// ConnectionHandler exposes connection lifecycle operations.
type ConnectionHandler struct {
	connRepo  repositories.ConnectionRepository
	analysis  services.AnalysisService
	encryptor *crypto.CredentialEncryptor
	logger    *zap.Logger
}

// NewConnectionHandler creates a new ConnectionHandler.
func NewConnectionHandler(
	connRepo repositories.ConnectionRepository,
	analysis services.AnalysisService,
	encryptor *crypto.CredentialEncryptor,
	logger *zap.Logger,
) *ConnectionHandler {
	return &ConnectionHandler{
		connRepo:  connRepo,
		analysis:  analysis,
		encryptor: encryptor,
		logger:    logger.Named("connections"),
	}
}

// RegisterRoutes registers the connection handler's routes on the given mux.
func (h *ConnectionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/connections", h.Create)
	mux.HandleFunc("GET /api/connections", h.List)
	mux.HandleFunc("GET /api/connections/{id}", h.GetStatus)
	mux.HandleFunc("DELETE /api/connections/{id}", h.Delete)
	mux.HandleFunc("POST /api/connections/{id}/analyze", h.Analyze)
	mux.HandleFunc("POST /api/connections/{id}/test", h.Test)
	mux.HandleFunc("GET /api/connections/{id}/insights", h.ListInsights)
	mux.HandleFunc("GET /api/connections/{id}/indexing-report", h.IndexingReport)
	mux.HandleFunc("GET /api/connections/{id}/search", h.Search)
}

func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Host == "" || req.User == "" || req.Database == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "host, user, and database are required")
		return
	}

	encrypted, err := h.encryptor.Encrypt(req.Password)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	conn := &models.Connection{
		Name:              req.Name,
		Host:              req.Host,
		Port:              req.Port,
		User:              req.User,
		EncryptedPassword: encrypted,
		Database:          req.Database,
		SSLMode:           req.SSLMode,
	}
	if err := h.connRepo.Create(r.Context(), conn); err != nil {
		_ = WriteError(w, err)
		return
	}

	h.logger.Info("Connection registered",
		zap.String("connection_id", conn.ID.String()),
		zap.String("host", conn.Host))
	_ = WriteJSON(w, http.StatusCreated, conn)
}

func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	conns, err := h.connRepo.List(r.Context())
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, conns)
}

func (h *ConnectionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	conn, err := h.analysis.GetStatus(r.Context(), id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, conn)
}

func (h *ConnectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := h.analysis.DeleteConnection(r.Context(), id); err != nil {
		_ = WriteError(w, err)
		return
	}
	h.logger.Info("Connection deleted", zap.String("connection_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConnectionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := h.analysis.StartAnalysis(r.Context(), id); err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *ConnectionHandler) Test(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := h.analysis.TestConnection(r.Context(), id); err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ConnectionHandler) ListInsights(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	insights, err := h.analysis.ListInsights(r.Context(), id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, insights)
}

func (h *ConnectionHandler) IndexingReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	report, err := h.analysis.GetIndexingReport(r.Context(), id)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, report)
}

func (h *ConnectionHandler) Search(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "query parameter q is required")
		return
	}
	matches, err := h.analysis.SearchRelevantTables(r.Context(), id, query)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, matches)
}

// pathUUID parses the {id} path segment, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "invalid connection id")
		return uuid.Nil, false
	}
	return id, true
}
