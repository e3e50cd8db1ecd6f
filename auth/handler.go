package auth

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/utils"
)

// CookieName is the cookie read by the auth middleware when no
// Authorization header is sent
const CookieName = "auth_token"

// TokenIssuer signs bearer tokens
type TokenIssuer interface {
	Issue(subject string, ttl time.Duration) (string, time.Time, error)
}

// Handler serves the development token endpoint
type Handler struct {
	issuer TokenIssuer
	ttl    time.Duration
	secure bool
	logger *zap.Logger
}

// NewHandler creates a new auth handler. secure marks issued cookies as
// HTTPS-only.
func NewHandler(issuer TokenIssuer, ttl time.Duration, secure bool, logger *zap.Logger) *Handler {
	return &Handler{
		issuer: issuer,
		ttl:    ttl,
		secure: secure,
		logger: logger,
	}
}

// TokenRequest is the body of POST /auth/token
type TokenRequest struct {
	Subject string `json:"subject" validate:"required,max=128"`
}

// TokenResponse is returned by POST /auth/token
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleIssue signs a token for the requested subject and sets it as a cookie
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := utils.DecodeJSON(r, &req, false); err != nil {
		if utils.IsValidationError(err) {
			_ = utils.WriteBadRequest(w, "Validation failed", utils.ValidationDetails(err))
			return
		}
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	token, expires, err := h.issuer.Issue(strings.TrimSpace(req.Subject), h.ttl)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to issue token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})

	h.logger.Info("issued development token",
		zap.String("sub", req.Subject),
		zap.Time("expires_at", expires))

	_ = utils.WriteOK(w, TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expires,
	})
}

// HandleLogout clears the token cookie
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	utils.WriteNoContent(w)
}
