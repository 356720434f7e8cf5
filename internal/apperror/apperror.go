// Package apperror defines the error taxonomy shared by every layer.
//
// Services return these errors, handlers translate them into HTTP responses
// (see handler/response.go) and the CLI prints their messages. Callers test
// for a kind with errors.Is against the sentinels below, never by comparing
// message strings.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUpstream        = errors.New("upstream error")
	ErrTooManyRequests = errors.New("too many requests")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Code    string // Optional: machine-readable reason, e.g. "refresh_failed"

	// RetryAfter is set on ErrTooManyRequests errors.
	RetryAfter time.Duration
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated is the AuthError of the token lifecycle: no session, a
// session the provider no longer honours, or a failed refresh. The code is
// one of the Code* constants below.
//
// Callers must not retry these; the owner has to sign in again.
func Unauthenticated(code, message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
		Code:    code,
	}
}

// Reason codes carried by Unauthenticated errors.
const (
	CodeNoSession      = "no_session"
	CodeRefreshFailed  = "refresh_failed"
	CodeMissingToken   = "missing_token"
	CodeInvalidToken   = "invalid_session"
	CodeExchangeFailed = "exchange_failed"
)

// TooManyRequests reports that the caller hit a rate policy (for example the
// minimum interval between syncs). retryAfter tells the caller when to try again.
func TooManyRequests(message string, retryAfter time.Duration) *AppError {
	return &AppError{
		Err:        ErrTooManyRequests,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// UpstreamError is returned when the activity provider answers with a non-2xx
// status. Body holds the (truncated) response body for diagnosis.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("%s: upstream returned status %d", e.Op, e.Status)
}

// Unwrap lets errors.Is(err, ErrUpstream) match every UpstreamError.
func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}
