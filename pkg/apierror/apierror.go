package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is the closed set of failure categories the service exposes.
// Control flow (HTTP status, logging severity) switches over Kind,
// never over message text.
type Kind string

const (
	KindUnauthenticated  Kind = "UNAUTHENTICATED"
	KindForbidden        Kind = "FORBIDDEN"
	KindRateLimited      Kind = "RATE_LIMITED"
	KindValidationFailed Kind = "VALIDATION_FAILED"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindInternal         Kind = "INTERNAL_ERROR"
)

type APIError struct {
	Kind    Kind   `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`

	// ResetTime is set only for RATE_LIMITED errors.
	ResetTime time.Time `json:"-"`

	cause error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

func (e *APIError) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string, details string) *APIError {
	return &APIError{Kind: kind, Message: message, Details: details}
}

// Unauthenticated collapses every verification failure into one
// indistinguishable error so callers cannot probe whether a token was
// expired, revoked or never issued.
func Unauthenticated() *APIError {
	return &APIError{Kind: KindUnauthenticated, Message: "not authenticated"}
}

func Forbidden(message string) *APIError {
	if message == "" {
		message = "insufficient permissions"
	}
	return &APIError{Kind: KindForbidden, Message: message}
}

func RateLimited(resetTime time.Time) *APIError {
	return &APIError{
		Kind:      KindRateLimited,
		Message:   "too many attempts, please try again later",
		Details:   resetTime.UTC().Format(time.RFC3339),
		ResetTime: resetTime.UTC(),
	}
}

func Validation(message string, field string) *APIError {
	return &APIError{Kind: KindValidationFailed, Message: message, Details: field}
}

func Internal(err error) *APIError {
	return &APIError{
		Kind:    KindInternal,
		Message: "unexpected server error",
		cause:   err,
	}
}

// KindOf extracts the Kind from an error chain, defaulting to internal.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}
