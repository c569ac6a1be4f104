package errors

import (
	"fmt"
	"net/http"
)

// APIError represents a standardized API error response
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Status  int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails adds additional details to an error
func (e *APIError) WithDetails(details string) *APIError {
	e.Details = details
	return e
}

// NotFound creates a NOT_FOUND error
func NotFound(resource string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

// Unauthorized creates an UNAUTHORIZED error
func Unauthorized(message string) *APIError {
	return &APIError{
		Code:    ErrUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// Malformed creates a MALFORMED error for structurally invalid tokens or input
func Malformed(message string) *APIError {
	return &APIError{
		Code:    ErrMalformed,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// Expired creates an EXPIRED error for tokens past their validity window
func Expired() *APIError {
	return &APIError{
		Code:    ErrExpired,
		Message: "token expired",
		Status:  http.StatusUnauthorized,
	}
}

// InvalidSignature creates an INVALID_SIGNATURE error
func InvalidSignature() *APIError {
	return &APIError{
		Code:    ErrInvalidSignature,
		Message: "token signature invalid",
		Status:  http.StatusUnauthorized,
	}
}

// InsufficientScope creates an INSUFFICIENT_SCOPE error
func InsufficientScope(message string) *APIError {
	if message == "" {
		message = "insufficient scope for this operation"
	}
	return &APIError{
		Code:    ErrInsufficientScope,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

// RateLimited creates a RATE_LIMITED error
func RateLimited(message string) *APIError {
	if message == "" {
		message = "rate limit exceeded"
	}
	return &APIError{
		Code:    ErrRateLimited,
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

// AbuseDetected creates an ABUSE_DETECTED error
func AbuseDetected(reason string) *APIError {
	return &APIError{
		Code:    ErrAbuseDetected,
		Message: "request denied by streaming policy",
		Details: reason,
		Status:  http.StatusForbidden,
	}
}

// DecryptionFailure creates a DECRYPTION_FAILURE error. Cipher detail is
// never attached to the response; callers log it server-side only.
func DecryptionFailure() *APIError {
	return &APIError{
		Code:    ErrDecryptionFailure,
		Message: "unable to serve content",
		Status:  http.StatusInternalServerError,
	}
}

// BadRequest creates a BAD_REQUEST error
func BadRequest(message string) *APIError {
	return &APIError{
		Code:    ErrBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// InternalError creates an INTERNAL_ERROR
func InternalError(message string) *APIError {
	return &APIError{
		Code:    ErrInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

// ServiceUnavailable creates a SERVICE_UNAVAILABLE error
func ServiceUnavailable(service string) *APIError {
	return &APIError{
		Code:    ErrServiceUnavail,
		Message: fmt.Sprintf("%s is temporarily unavailable", service),
		Status:  http.StatusServiceUnavailable,
	}
}
