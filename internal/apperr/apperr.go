// Package apperr holds the error taxonomy shared by the pipeline and its
// transports. Callers wrap one of the sentinels with fmt.Errorf("...: %w")
// and transports classify with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrAuth                = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedResponse   = errors.New("malformed response")
	ErrStorage             = errors.New("storage failure")
)

// FieldError is a validation failure with per-field detail.
type FieldError struct {
	Fields map[string]string
}

func (e *FieldError) Error() string {
	if len(e.Fields) == 1 {
		for f, m := range e.Fields {
			return f + ": " + m
		}
	}
	return ErrValidation.Error()
}

func (e *FieldError) Unwrap() error { return ErrValidation }

// Invalid builds a FieldError for a single field.
func Invalid(field, msg string) error {
	return &FieldError{Fields: map[string]string{field: msg}}
}

// Status maps an error to the HTTP status and the client-safe message.
// Wrapped detail never reaches the client.
func Status(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway, "recommendation provider is unavailable, please retry"
	case errors.Is(err, ErrMalformedResponse):
		return http.StatusInternalServerError, "recommendation provider returned an unexpected response, please retry"
	case errors.Is(err, ErrStorage):
		return http.StatusInternalServerError, "failed to save your data, please retry"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// Retryable reports whether the caller may retry the same request.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrStorage)
}
