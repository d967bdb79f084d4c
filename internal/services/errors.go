package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoCredential is returned when no provider API key is configured. No
// network call is made.
var ErrNoCredential = errors.New("no AI API key configured")

// GenerationFailure marks a record whose content could not be produced.
type GenerationFailure struct {
	Reason string
	Err    error
}

func (e *GenerationFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed: %s: %v", e.Reason, e.Err)
	}
	return "generation failed: " + e.Reason
}

func (e *GenerationFailure) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error: status %d, body: %s", e.Provider, e.StatusCode, e.Body)
}

// Transient reports whether the request is worth retrying.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func isTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	return false
}
