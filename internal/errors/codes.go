package errors

import "net/http"

// ErrorCode represents the type of error
type ErrorCode string

const (
	ErrMalformed         ErrorCode = "MALFORMED"
	ErrExpired           ErrorCode = "EXPIRED"
	ErrInvalidSignature  ErrorCode = "INVALID_SIGNATURE"
	ErrInsufficientScope ErrorCode = "INSUFFICIENT_SCOPE"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
	ErrAbuseDetected     ErrorCode = "ABUSE_DETECTED"
	ErrDecryptionFailure ErrorCode = "DECRYPTION_FAILURE"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrBadRequest        ErrorCode = "BAD_REQUEST"
	ErrInternalError     ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavail    ErrorCode = "SERVICE_UNAVAILABLE"
)

// StatusCodeMap maps ErrorCode to HTTP status code
var StatusCodeMap = map[ErrorCode]int{
	ErrMalformed:         http.StatusUnauthorized,
	ErrExpired:           http.StatusUnauthorized,
	ErrInvalidSignature:  http.StatusUnauthorized,
	ErrInsufficientScope: http.StatusForbidden,
	ErrRateLimited:       http.StatusTooManyRequests,
	ErrAbuseDetected:     http.StatusForbidden,
	ErrDecryptionFailure: http.StatusInternalServerError,
	ErrNotFound:          http.StatusNotFound,
	ErrUnauthorized:      http.StatusUnauthorized,
	ErrBadRequest:        http.StatusBadRequest,
	ErrInternalError:     http.StatusInternalServerError,
	ErrServiceUnavail:    http.StatusServiceUnavailable,
}

// StatusCode returns the HTTP status code for this error code
func (e ErrorCode) StatusCode() int {
	if code, ok := StatusCodeMap[e]; ok {
		return code
	}
	return http.StatusInternalServerError
}
