// Package apperr defines the error taxonomy shared by the tenancy services
// and its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	// KindUnauthenticated means no valid actor was presented.
	KindUnauthenticated Kind = "unauthenticated"
	// KindNotFound covers both absent resources and resources the actor may not see.
	KindNotFound Kind = "not_found"
	// KindValidation means the input was malformed.
	KindValidation Kind = "validation"
	// KindConflict means the request conflicts with current state.
	KindConflict Kind = "conflict"
	// KindExpired means an invitation is past its expiry.
	KindExpired Kind = "expired"
	// KindTooLarge means the request body exceeded the configured limit.
	KindTooLarge Kind = "too_large"
	// KindRateLimited means the actor exhausted a rate-limit budget.
	KindRateLimited Kind = "rate_limited"
	// KindInternal is an unexpected failure; details stay in server logs.
	KindInternal Kind = "internal"
)

// Error is a classified application error.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so callers can write errors.Is(err, apperr.NotFound("")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind carrying a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Unauthenticated returns a KindUnauthenticated error.
func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }

// NotFound returns a KindNotFound error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Validation returns a KindValidation error.
func Validation(message string) *Error { return New(KindValidation, message) }

// Conflict returns a KindConflict error.
func Conflict(message string) *Error { return New(KindConflict, message) }

// Expired returns a KindExpired error.
func Expired(message string) *Error { return New(KindExpired, message) }

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return Wrap(KindInternal, "internal server error", err)
}

// RateLimited returns a KindRateLimited error with a retry hint.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limit exceeded", RetryAfter: retryAfter}
}

// KindOf returns the kind of err, treating unclassified errors as internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// As converts any error into an *Error, wrapping unclassified errors as internal.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// HTTPStatus maps a kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindExpired:
		return http.StatusGone
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
