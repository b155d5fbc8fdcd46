// Package errors provides the pipeline error taxonomy and API error types.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure and drives retry policy.
type Kind int

const (
	// KindNoData marks an empty-but-valid response (explorer "No data found",
	// EOA classification). Callers proceed with a fallback; this is not a failure.
	KindNoData Kind = iota
	// KindRateLimited marks HTTP 429 or a rate-limit message. Rotate key or
	// endpoint and retry with exponential backoff.
	KindRateLimited
	// KindTransient marks 5xx, timeouts, DNS and socket resets, and
	// method-not-found. The endpoint is marked slow/temp-failed and the next
	// endpoint is tried.
	KindTransient
	// KindPermanent marks 401/403, sanctioned endpoints, and disabled API
	// keys. The endpoint or key is excluded for the process lifetime.
	KindPermanent
	// KindShapeMismatch marks an aggregator result whose length does not match
	// the request. Retried a bounded number of times, then surfaced hard;
	// mismatched data is never persisted.
	KindShapeMismatch
	// KindFatal marks unrecoverable conditions (database unreachable, no valid
	// endpoints after reset). The process exits non-zero.
	KindFatal
)

// String returns the kind's name for logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindNoData:
		return "no_data"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindShapeMismatch:
		return "shape_mismatch"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// PipelineError carries a classified failure through the ingestion pipeline.
type PipelineError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// New wraps err with a kind and operation name.
func New(kind Kind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// Newf creates a classified error from a format string.
func Newf(kind Kind, op, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or KindTransient when err carries none.
// An unclassified error is retried conservatively rather than dropped.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// IsNoData reports whether err represents an empty-but-valid response.
func IsNoData(err error) bool {
	return err != nil && KindOf(err) == KindNoData
}

// IsRetryable reports whether the caller should retry after err.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTransient, KindShapeMismatch:
		return true
	default:
		return false
	}
}

// APIError represents a standardized API error response.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// WithMessage returns a copy of the error with a custom message.
func (e *APIError) WithMessage(message string) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    message,
		StatusCode: e.StatusCode,
		Details:    e.Details,
	}
}

// Standard error definitions for the query API.
var (
	// ErrBadRequest is returned when the request is malformed.
	ErrBadRequest = &APIError{
		Code:       "bad_request",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = &APIError{
		Code:       "not_found",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	// ErrRateLimited is returned when rate limits are exceeded.
	ErrRateLimited = &APIError{
		Code:       "rate_limited",
		Message:    "Too many requests. Please try again later.",
		StatusCode: http.StatusTooManyRequests,
	}

	// ErrInternal is returned for unexpected server errors.
	ErrInternal = &APIError{
		Code:       "internal_error",
		Message:    "An internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
)

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    fmt.Sprintf("Validation failed: %s", message),
		StatusCode: http.StatusBadRequest,
		Details: map[string]string{
			"field": field,
			"error": message,
		},
	}
}

// AsAPIError converts an error to an APIError if possible.
// Returns ErrInternal if the error is not an APIError.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal
}
