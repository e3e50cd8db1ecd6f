package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrCredentialMissing is returned when an adapter is built without its secret
	ErrCredentialMissing = errors.New("credential missing")

	// ErrNoMessages is returned when translation leaves nothing to send
	ErrNoMessages = errors.New("no messages to send")
)

// ErrorKind tags a provider failure at the site where it happened so that
// callers can decide on fallback without inspecting message text.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindTimeout     ErrorKind = "timeout"
	KindConnection  ErrorKind = "connection"
	KindServerError ErrorKind = "server_error"
	KindAuthError   ErrorKind = "auth_error"
	KindMalformed   ErrorKind = "malformed"
	KindUnknown     ErrorKind = "unknown"
)

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Kind classifies the failure
	Kind ErrorKind

	// Code is the backend error code or type, when reported
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%d %s", e.StatusCode, msg)
	}
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider string, kind ErrorKind, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// KindOf extracts the ErrorKind of err, or KindUnknown if err carries none
func KindOf(err error) ErrorKind {
	var provErr *ProviderError
	if errors.As(err, &provErr) && provErr.Kind != "" {
		return provErr.Kind
	}
	return KindUnknown
}

// KindForStatus maps an HTTP status code onto an ErrorKind
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuthError
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindServerError
	case status >= 400:
		return KindMalformed
	default:
		return KindUnknown
	}
}

// KindForTransport classifies an error returned by an HTTP round trip
func KindForTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindConnection
}

// ConfigError is returned by adapter constructors when required
// configuration is absent or invalid.
type ConfigError struct {
	Provider string
	Field    string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: invalid configuration for %s: %v", e.Provider, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// MissingCredential builds the construction error for an absent secret
func MissingCredential(provider, field string) error {
	return &ConfigError{Provider: provider, Field: field, Err: ErrCredentialMissing}
}
