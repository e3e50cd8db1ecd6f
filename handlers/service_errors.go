package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/services"
	"github.com/upb/chat-gateway/utils"
)

// StatusClientClosedRequest is reported when the caller went away mid-turn
const StatusClientClosedRequest = 499

// errorStatus maps a domain error to its HTTP status and public message
func errorStatus(err error) (int, string) {
	switch {
	case services.IsNotFoundError(err):
		return http.StatusNotFound, err.Error()
	case services.IsValidationError(err):
		return http.StatusBadRequest, err.Error()
	case services.IsUnauthorizedError(err):
		return http.StatusUnauthorized, err.Error()
	case services.IsConflictError(err):
		return http.StatusConflict, err.Error()
	case services.IsExternalError(err):
		return http.StatusBadGateway, err.Error()
	case services.IsUnavailableError(err):
		return http.StatusServiceUnavailable, err.Error()
	case services.IsCanceledError(err):
		return StatusClientClosedRequest, "request canceled"
	case services.IsInternalError(err):
		return http.StatusInternalServerError, "An internal error occurred"
	default:
		return http.StatusInternalServerError, "An unexpected error occurred"
	}
}

// errorBody builds the JSON error body used both for plain responses and
// for the SSE error event
func errorBody(err error) (int, utils.ErrorResponse) {
	status, message := errorStatus(err)
	body := utils.ErrorResponse{
		Error:   utils.ErrorCode(status),
		Message: message,
	}
	if status < http.StatusInternalServerError || status == http.StatusBadGateway || status == http.StatusServiceUnavailable {
		body.Details = services.GetErrorDetails(err)
	}
	return status, body
}

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status, body := errorBody(err)
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable:
		logger.Error("internal server error",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
	case status == StatusClientClosedRequest:
		logger.Debug("request canceled", zap.Error(err))
	default:
		logger.Debug("handled service error",
			zap.Int("status", status),
			zap.String("type", string(services.GetErrorType(err))),
			zap.Error(err))
	}

	if werr := utils.WriteJSON(w, status, body); werr != nil {
		logger.Error("failed to write error response", zap.Error(werr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		if err := utils.WriteBadRequest(w, "Validation failed", utils.ValidationDetails(err)); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// withDetail attaches a detail to the domain error inside err
func withDetail(err error, key string, value interface{}) error {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		domainErr.WithDetail(key, value)
	}
	return err
}
