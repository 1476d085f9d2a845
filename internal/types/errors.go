package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidWebhook ErrorCode = "validation_invalid_webhook_url"
	ErrCodeValidationInvalidAPIKey  ErrorCode = "validation_invalid_api_key"
	ErrCodeValidationInvalidBody    ErrorCode = "validation_invalid_body"
	ErrCodeValidationThreshold      ErrorCode = "validation_threshold_out_of_range"

	// Auth (401)
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"

	// Not Found (404)
	ErrCodeNotFoundCabinet      ErrorCode = "not_found_cabinet"
	ErrCodeNotFoundNotification ErrorCode = "not_found_notification"

	// Conflict (409)
	ErrCodeConflictCabinetExists ErrorCode = "conflict_cabinet_exists"

	// Limits (429)
	ErrCodeRateLimit ErrorCode = "rate_limit_exceeded"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalQueue      ErrorCode = "internal_queue_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamWB         ErrorCode = "upstream_wildberries_unavailable"
	ErrCodeUpstreamRateLimit  ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamAuth       ErrorCode = "upstream_unauthorized"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case c == ErrCodeRateLimit || c == ErrCodeUpstreamRateLimit:
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. It carries a typed code
// for API translation and wraps the underlying cause for errors.Is/As.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewAppError constructs an AppError wrapping the given cause (may be nil).
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status for the error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}
