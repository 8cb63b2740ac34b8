package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Invalid("region", "too long"), http.StatusBadRequest},
		{fmt.Errorf("verify token: %w", ErrAuth), http.StatusUnauthorized},
		{fmt.Errorf("rec 1: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("chat: %w: %w", ErrUpstreamUnavailable, errors.New("dial tcp")), http.StatusBadGateway},
		{fmt.Errorf("synthesize: %w", ErrMalformedResponse), http.StatusInternalServerError},
		{fmt.Errorf("save rating: %w", ErrStorage), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		got, msg := Status(c.err)
		if got != c.want {
			t.Fatalf("Status(%v) = %d, want %d", c.err, got, c.want)
		}
		if msg == "" {
			t.Fatalf("empty message for %v", c.err)
		}
	}
}

func TestStatusHidesInternalDetail(t *testing.T) {
	err := fmt.Errorf("query rated_items at 10.0.0.3: %w", ErrStorage)
	_, msg := Status(err)
	if strings.Contains(msg, "10.0.0.3") || strings.Contains(msg, "rated_items") {
		t.Fatalf("internal detail leaked: %q", msg)
	}
}

func TestFieldErrorIsValidation(t *testing.T) {
	err := Invalid("rating", "must be between 1 and 5")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("field error must unwrap to ErrValidation")
	}
	if err.Error() != "rating: must be between 1 and 5" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if Retryable(err) {
		t.Fatalf("validation errors are not retryable")
	}
	if !Retryable(fmt.Errorf("x: %w", ErrMalformedResponse)) {
		t.Fatalf("malformed response should be retryable")
	}
}
