package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/chat-gateway/services/chat"
	"github.com/upb/chat-gateway/services/prompt"
	"github.com/upb/chat-gateway/services/providers"
	"github.com/upb/chat-gateway/services/routing"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeUnavailable  ErrorType = "unavailable"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeCanceled     ErrorType = "canceled"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	ErrSessionNotFound    = NewDomainError(ErrorTypeNotFound, "chat session not found", nil)
	ErrTranscriptNotFound = NewDomainError(ErrorTypeNotFound, "no stored transcript for session", nil)

	ErrInvalidInput     = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyMessage     = NewDomainError(ErrorTypeValidation, "message content cannot be empty", nil)
	ErrInvalidSessionID = NewDomainError(ErrorTypeValidation, "invalid session ID", nil)
	ErrUnknownExpert    = NewDomainError(ErrorTypeValidation, "unknown expert", nil)

	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)

	ErrTurnInProgress = NewDomainError(ErrorTypeConflict, "a turn is already in progress for this session", nil)

	ErrTranscriptsDisabled = NewDomainError(ErrorTypeUnavailable, "transcript store is not configured", nil)

	ErrProvidersExhausted = NewDomainError(ErrorTypeExternal, "all providers failed", nil)
	ErrStreamInterrupted  = NewDomainError(ErrorTypeExternal, "provider stream failed", nil)
	ErrEmptyReply         = NewDomainError(ErrorTypeExternal, "provider returned an empty reply", nil)

	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// FromChatError converts errors raised by a chat turn into domain errors.
// Errors that are already DomainErrors are returned unchanged.
func FromChatError(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	var (
		exhausted *routing.ExhaustedError
		midStream *chat.MidStreamError
	)
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		return NewDomainError(ErrorTypeValidation, ErrEmptyMessage.Message, err)

	case errors.Is(err, chat.ErrTurnInProgress):
		return NewDomainError(ErrorTypeConflict, ErrTurnInProgress.Message, err)

	case errors.Is(err, chat.ErrSessionNotFound):
		return NewDomainError(ErrorTypeNotFound, ErrSessionNotFound.Message, err)

	case errors.Is(err, prompt.ErrUnknownExpert):
		return NewDomainError(ErrorTypeValidation, ErrUnknownExpert.Message, err)

	case errors.As(err, &exhausted):
		return NewDomainError(ErrorTypeExternal, ErrProvidersExhausted.Message, err).
			WithDetail("attempts", exhausted.Attempts).
			WithDetail("last_provider", exhausted.Provider).
			WithDetail("kind", string(providers.KindOf(exhausted.Last)))

	case errors.Is(err, chat.ErrEmptyReply):
		e := NewDomainError(ErrorTypeExternal, ErrEmptyReply.Message, err)
		if errors.As(err, &midStream) {
			e.WithDetail("provider", midStream.Provider)
		}
		return e

	case errors.As(err, &midStream):
		return NewDomainError(ErrorTypeExternal, ErrStreamInterrupted.Message, err).
			WithDetail("provider", midStream.Provider).
			WithDetail("kind", string(providers.KindOf(midStream.Err)))

	case errors.Is(err, routing.ErrNoProviders):
		return NewDomainError(ErrorTypeUnavailable, "no providers configured", err)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewDomainError(ErrorTypeCanceled, "request canceled", err)
	}

	return WrapInternal("chat turn failed", err)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsUnavailableError checks if a required component is not configured
func IsUnavailableError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnavailable
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// IsCanceledError checks if the caller went away
func IsCanceledError(err error) bool {
	return GetErrorType(err) == ErrorTypeCanceled
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
