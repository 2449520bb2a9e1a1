// Package httperror maps Flint's small internal error taxonomy to HTTP
// status codes and a {error, details?} response body.
package httperror

import (
	"errors"
	"net/http"
)

// Kind classifies an error for HTTP status mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
)

// Error is a classified error carrying a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Details string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation wraps a request-validation failure (400).
func Validation(message string) error { return newErr(KindValidation, message, nil) }

// NotFound wraps a missing-resource failure (404).
func NotFound(message string) error { return newErr(KindNotFound, message, nil) }

// Conflict wraps a conflicting-request failure (409).
func Conflict(message string) error { return newErr(KindConflict, message, nil) }

// Internal wraps an unexpected failure (500), keeping the original error
// available via Unwrap; Body reports its text in the "details" field.
func Internal(message string, cause error) error { return newErr(KindInternal, message, cause) }

// StatusCode returns the HTTP status err should be reported with,
// defaulting unclassified errors to 500.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindValidation:
			return http.StatusBadRequest
		case KindNotFound:
			return http.StatusNotFound
		case KindConflict:
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

// Body returns the {error, details?} payload for the HTTP surface.
func Body(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		body := map[string]string{"error": e.Message}
		if e.Kind == KindInternal && e.cause != nil {
			body["details"] = e.cause.Error()
		}
		return body
	}
	return map[string]string{"error": "Internal error.", "details": err.Error()}
}
