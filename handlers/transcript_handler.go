package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/services"
	"github.com/upb/chat-gateway/utils"
)

const (
	defaultTranscriptLimit = 50
	maxTranscriptLimit     = 500
)

// TranscriptStore reads and purges stored turns
type TranscriptStore interface {
	Get(ctx context.Context, sessionID uuid.UUID, limit int) (*services.Transcript, error)
	Delete(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

// TranscriptHandler serves the stored transcripts. Every endpoint answers
// 503 when no store is configured.
type TranscriptHandler struct {
	store  TranscriptStore
	logger *zap.Logger
}

// NewTranscriptHandler creates a new TranscriptHandler. store may be nil.
func NewTranscriptHandler(store TranscriptStore, logger *zap.Logger) *TranscriptHandler {
	return &TranscriptHandler{
		store:  store,
		logger: logger,
	}
}

// HandleGetTranscript handles GET /api/v1/chat/sessions/{id}/transcript
func (h *TranscriptHandler) HandleGetTranscript(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		HandleServiceError(w, services.ErrTranscriptsDisabled, h.logger)
		return
	}

	id, err := sessionID(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	limit := defaultTranscriptLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxTranscriptLimit {
			_ = utils.WriteBadRequest(w, "limit must be between 1 and 500", nil)
			return
		}
		limit = n
	}

	transcript, err := h.store.Get(r.Context(), id, limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, transcript)
}

// HandleDeleteTranscript handles DELETE /api/v1/chat/sessions/{id}/transcript
func (h *TranscriptHandler) HandleDeleteTranscript(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		HandleServiceError(w, services.ErrTranscriptsDisabled, h.logger)
		return
	}

	id, err := sessionID(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if _, err := h.store.Delete(r.Context(), id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}
