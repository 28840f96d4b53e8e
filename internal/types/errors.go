package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrSessionAborted marks a store failure that leaves the ingestion session
// unusable. Any stage error wrapping it is fatal for the invocation rather
// than a skipped row.
var ErrSessionAborted = errors.New("store session aborted")

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Call sites MUST use these instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidPayload   ErrorCode = "validation_invalid_payload"
	ErrCodeValidationUnexpectedBucket ErrorCode = "validation_unexpected_bucket"
	ErrCodeValidationInvalidParameter ErrorCode = "validation_invalid_parameter"

	// Not Found (404)
	ErrCodeNotFoundSourceObject ErrorCode = "not_found_source_object"
	ErrCodeNotFoundRoute        ErrorCode = "not_found_route"

	// Upstream (502)
	ErrCodeUpstreamObjectStore ErrorCode = "upstream_object_store_unavailable"
	ErrCodeUpstreamDatabase    ErrorCode = "upstream_database_unavailable"

	// Internal (500)
	ErrCodeInternalObjectDecode   ErrorCode = "internal_object_decode"
	ErrCodeInternalObjectTooLarge ErrorCode = "internal_object_too_large"
	ErrCodeInternalDB             ErrorCode = "internal_database_error"
	ErrCodeInternalTimeout        ErrorCode = "internal_invocation_timeout"
	ErrCodeInternalUnexpected     ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Fatal ingestion failures
// and read API errors are expressed as AppError so callers can branch on Code
// and the API layer can map them to HTTP responses.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the ErrorCode carried by err, or ErrCodeInternalUnexpected
// when err is not an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}
