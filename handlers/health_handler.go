package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/utils"
)

// Version is reported by the status endpoint
var Version = "0.1.0"

// ChainInfo exposes the configured fallback chain
type ChainInfo interface {
	Providers() []string
}

// SessionCounter reports how many sessions are live
type SessionCounter interface {
	Len() int
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StatusResponse describes the running gateway
type StatusResponse struct {
	Version        string   `json:"version"`
	Environment    string   `json:"environment"`
	Providers      []string `json:"providers"`
	ActiveSessions int      `json:"active_sessions"`
	Transcripts    bool     `json:"transcripts"`
	AuthEnabled    bool     `json:"auth_enabled"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db          *sql.DB // nil when transcripts are not stored
	chain       ChainInfo
	sessions    SessionCounter
	environment string
	authEnabled bool
	logger      *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db *sql.DB, chain ChainInfo, sessions SessionCounter, environment string, authEnabled bool, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:          db,
		chain:       chain,
		sessions:    sessions,
		environment: environment,
		authEnabled: authEnabled,
		logger:      logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
// Readiness requires a non-empty chain and, when configured, a reachable database
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	switch {
	case h.db == nil:
		checks["database"] = "not_configured"
	case h.checkDatabase(ctx) != nil:
		checks["database"] = "unhealthy"
		allHealthy = false
	default:
		checks["database"] = "healthy"
	}

	if h.chain == nil || len(h.chain.Providers()) == 0 {
		checks["providers"] = "none_configured"
		allHealthy = false
	} else {
		checks["providers"] = "configured"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleStatus handles GET /api/v1/status
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:     Version,
		Environment: h.environment,
		Providers:   []string{},
		Transcripts: h.db != nil,
		AuthEnabled: h.authEnabled,
	}
	if h.chain != nil {
		resp.Providers = h.chain.Providers()
	}
	if h.sessions != nil {
		resp.ActiveSessions = h.sessions.Len()
	}
	_ = utils.WriteOK(w, resp)
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		return err
	}

	var result int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		return err
	}

	return nil
}
