package hamibot

import (
	"errors"
	"fmt"
)

// Error definitions for the hamibot package.
var (
	// ErrRetriesExhausted is returned when a call still fails after the
	// retry policy's final attempt. The last underlying error is wrapped.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// StatusError reports an unexpected HTTP status from the automation
// provider. The provider replies 204 to every accepted call, so anything
// else is a failure.
type StatusError struct {
	Method     string
	StatusCode int
}

// Error implements the error interface for StatusError.
func (e *StatusError) Error() string {
	return fmt.Sprintf("hamibot %s returned status %d, want 204", e.Method, e.StatusCode)
}

// IsStatus reports whether err carries the given HTTP status code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
