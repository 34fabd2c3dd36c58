package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	// RetryAfter, when positive, is surfaced as a Retry-After header
	// (seconds) on the response.
	RetryAfter int   `json:"-"`
	Err        error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials     = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrEmailNotVerified       = New("EMAIL_NOT_VERIFIED", http.StatusForbidden, "email address is not verified")
	ErrAccountLocked          = New("ACCOUNT_LOCKED", http.StatusTooManyRequests, "account temporarily locked, try again later")
	ErrRateLimited            = New("RATE_LIMITED", http.StatusTooManyRequests, "too many requests, try again later")
	ErrInvalidOrExpiredToken  = New("INVALID_OR_EXPIRED_TOKEN", http.StatusUnauthorized, "token is invalid or expired")
	ErrNotFound               = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden              = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized           = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict               = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation             = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrUpstreamUnavailable    = New("UPSTREAM_UNAVAILABLE", http.StatusServiceUnavailable, "upstream service unavailable")
	ErrInternal               = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss              = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// RateLimited returns a RATE_LIMITED error carrying a retry hint.
func RateLimited(retryAfterSeconds int) *Error {
	clone := *ErrRateLimited
	clone.RetryAfter = retryAfterSeconds
	return &clone
}

// AccountLocked returns an ACCOUNT_LOCKED error carrying a retry hint.
func AccountLocked(retryAfterSeconds int) *Error {
	clone := *ErrAccountLocked
	clone.RetryAfter = retryAfterSeconds
	return &clone
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
