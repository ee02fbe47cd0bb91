package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrConflict       = errors.New("resource conflict")
	ErrInternal       = errors.New("internal error")
	ErrConfiguration  = errors.New("configuration error")
	ErrProviderAPI    = errors.New("provider api error")
	ErrVerification   = errors.New("webhook verification failed")
	ErrReconciliation = errors.New("reconciliation conflict")
)

// AppError represents an application error with HTTP status and error code.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrorResponse represents the JSON error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToResponse converts an AppError to ErrorResponse.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:    e.Code,
			Message: e.Message,
		},
	}
}

// --- Constructors ---

// NotFound creates a not found error.
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return &AppError{
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Err:        ErrUnauthorized,
	}
}

// BadRequest creates a bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        ErrBadRequest,
	}
}

// Conflict creates a conflict error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
		Err:        ErrConflict,
	}
}

// Internal creates an internal error.
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// Configuration creates a configuration error. Fatal at provider construction;
// the process should refuse to start.
func Configuration(message string) *AppError {
	return &AppError{
		Code:       "CONFIGURATION_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        ErrConfiguration,
	}
}

// ProviderAPI creates a provider API error, surfaced when a provider call fails
// after retries are exhausted. The user-visible message stays generic; detail
// travels in the wrapped error and the audit log.
func ProviderAPI(provider string, err error) *AppError {
	return &AppError{
		Code:       "PROVIDER_API_ERROR",
		Message:    "payment unavailable",
		StatusCode: http.StatusBadGateway,
		Err:        fmt.Errorf("%w: %s: %v", ErrProviderAPI, provider, err),
	}
}

// Verification creates a webhook verification error. The request is rejected
// and no state is mutated.
func Verification(message string) *AppError {
	if message == "" {
		message = "invalid signature"
	}
	return &AppError{
		Code:       "WEBHOOK_VERIFICATION_ERROR",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        ErrVerification,
	}
}

// Reconciliation creates a reconciliation conflict error for webhooks that
// reference unknown orders. Not fatal to the HTTP handler.
func Reconciliation(message string) *AppError {
	return &AppError{
		Code:       "RECONCILIATION_CONFLICT",
		Message:    message,
		StatusCode: http.StatusOK,
		Err:        ErrReconciliation,
	}
}

// GetStatusCode returns the appropriate HTTP status code for an error.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrVerification):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrProviderAPI):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
