package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/middleware"
	"github.com/upb/chat-gateway/services"
	"github.com/upb/chat-gateway/services/chat"
	"github.com/upb/chat-gateway/services/prompt"
	"github.com/upb/chat-gateway/services/providers"
	"github.com/upb/chat-gateway/services/streaming"
	"github.com/upb/chat-gateway/utils"
)

// SessionStore holds the live chat sessions
type SessionStore interface {
	Create(systemPrompt string) *chat.Session
	Get(id uuid.UUID) (*chat.Session, error)
	Delete(id uuid.UUID) bool
	Len() int
}

// CreateSessionRequest is the optional body of POST /chat/sessions
type CreateSessionRequest struct {
	SystemPrompt string `json:"system_prompt,omitempty" validate:"omitempty,max=16000,excluded_with=Expert"`
	Expert       string `json:"expert,omitempty" validate:"omitempty,max=64"`
}

// SetExpertRequest is the body of PUT /chat/sessions/{id}/expert
type SetExpertRequest struct {
	Expert string `json:"expert" validate:"required,max=64"`
}

// SendMessageRequest is the body of POST /chat/sessions/{id}/messages
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=32000"`
}

// SessionResponse describes a live session
type SessionResponse struct {
	ID           uuid.UUID `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Expert       string    `json:"expert,omitempty"`
	LastProvider string    `json:"last_provider,omitempty"`
	Messages     int       `json:"messages"`
}

// HistoryResponse is the conversation of a live session
type HistoryResponse struct {
	SessionID uuid.UUID           `json:"session_id"`
	Messages  []providers.Message `json:"messages"`
}

// SSE payloads
type providerEvent struct {
	Provider string `json:"provider"`
	Switched bool   `json:"switched"`
}

type fragmentEvent struct {
	Text string `json:"text"`
}

// ChatHandler serves the chat session endpoints
type ChatHandler struct {
	sessions SessionStore
	experts  *prompt.Catalog
	logger   *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(sessions SessionStore, experts *prompt.Catalog, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		sessions: sessions,
		experts:  experts,
		logger:   logger,
	}
}

// HandleCreateSession handles POST /api/v1/chat/sessions
func (h *ChatHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := utils.DecodeJSON(r, &req, true); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	systemPrompt := req.SystemPrompt
	if req.Expert != "" {
		expert, err := h.experts.Lookup(req.Expert)
		if err != nil {
			HandleServiceError(w, withDetail(services.FromChatError(err), "experts", h.experts.Keys()), h.logger)
			return
		}
		systemPrompt = expert.System
		req.Expert = expert.Key
	}

	session := h.sessions.Create(systemPrompt)

	h.logger.Info("chat session created",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("session_id", session.ID().String()),
		zap.String("sub", middleware.SubjectFromContext(r.Context())),
		zap.String("expert", req.Expert))

	resp := sessionResponse(session)
	resp.Expert = req.Expert
	_ = utils.WriteCreated(w, resp)
}

// HandleGetSession handles GET /api/v1/chat/sessions/{id}
func (h *ChatHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	_ = utils.WriteOK(w, sessionResponse(session))
}

// HandleDeleteSession handles DELETE /api/v1/chat/sessions/{id}
func (h *ChatHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if !h.sessions.Delete(id) {
		HandleServiceError(w, services.ErrSessionNotFound, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleGetHistory handles GET /api/v1/chat/sessions/{id}/history
func (h *ChatHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	_ = utils.WriteOK(w, HistoryResponse{
		SessionID: session.ID(),
		Messages:  session.History(),
	})
}

// HandleResetHistory handles DELETE /api/v1/chat/sessions/{id}/history
func (h *ChatHandler) HandleResetHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := session.Reset(); err != nil {
		HandleServiceError(w, services.FromChatError(err), h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleSetExpert handles PUT /api/v1/chat/sessions/{id}/expert.
// Switching expert starts the conversation over.
func (h *ChatHandler) HandleSetExpert(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req SetExpertRequest
	if err := utils.DecodeJSON(r, &req, false); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	expert, err := h.experts.Lookup(req.Expert)
	if err != nil {
		HandleServiceError(w, withDetail(services.FromChatError(err), "experts", h.experts.Keys()), h.logger)
		return
	}
	if err := session.SetSystemPrompt(expert.System); err != nil {
		HandleServiceError(w, services.FromChatError(err), h.logger)
		return
	}

	resp := sessionResponse(session)
	resp.Expert = expert.Key
	_ = utils.WriteOK(w, resp)
}

// HandleSendMessage handles POST /api/v1/chat/sessions/{id}/messages.
// The reply streams as server-sent events unless ?stream=false.
func (h *ChatHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	stream := true
	if v := r.URL.Query().Get("stream"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			_ = utils.WriteBadRequest(w, "stream must be a boolean", nil)
			return
		}
		stream = b
	}

	var req SendMessageRequest
	if err := utils.DecodeJSON(r, &req, false); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if stream {
		sse, err := utils.NewSSEWriter(w)
		if err == nil {
			h.streamTurn(w, r, session, req.Content, sse)
			return
		}
		h.logger.Warn("response writer cannot stream, answering in one piece", zap.Error(err))
	}

	res, err := session.Complete(r.Context(), req.Content)
	if err != nil {
		HandleServiceError(w, services.FromChatError(err), h.logger)
		return
	}
	_ = utils.WriteOK(w, res)
}

func (h *ChatHandler) streamTurn(w http.ResponseWriter, r *http.Request, session *chat.Session, content string, sse *utils.SSEWriter) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	res, err := session.Turn(r.Context(), content, chat.Callbacks{
		OnProvider: func(name string, switched bool) {
			if err := sse.Event("provider", providerEvent{Provider: name, Switched: switched}); err != nil {
				h.logger.Debug("failed to send provider event", zap.String("request_id", requestID), zap.Error(err))
			}
		},
		OnFragment: func(fragment string) error {
			return sse.Event("fragment", fragmentEvent{Text: fragment})
		},
	})
	if err == nil {
		if err := sse.Event("done", res); err != nil {
			h.logger.Debug("failed to send done event", zap.String("request_id", requestID), zap.Error(err))
		}
		return
	}

	domainErr := services.FromChatError(err)
	if !sse.Started() {
		HandleServiceError(w, domainErr, h.logger)
		return
	}
	if streaming.IsForwardError(err) || r.Context().Err() != nil {
		h.logger.Info("client went away mid-stream",
			zap.String("request_id", requestID),
			zap.String("session_id", session.ID().String()))
		return
	}

	_, body := errorBody(domainErr)
	if err := sse.Event("error", body); err != nil {
		h.logger.Debug("failed to send error event", zap.String("request_id", requestID), zap.Error(err))
	}
}

func (h *ChatHandler) lookup(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	id, err := sessionID(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return nil, false
	}
	session, err := h.sessions.Get(id)
	if err != nil {
		HandleServiceError(w, withDetail(services.FromChatError(err), "session_id", id.String()), h.logger)
		return nil, false
	}
	return session, true
}

func sessionID(r *http.Request) (uuid.UUID, error) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidSessionID.Message, err)
	}
	return id, nil
}

func sessionResponse(s *chat.Session) SessionResponse {
	return SessionResponse{
		ID:           s.ID(),
		CreatedAt:    s.CreatedAt(),
		LastProvider: s.LastProvider(),
		Messages:     len(s.History()),
	}
}
