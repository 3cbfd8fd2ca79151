package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrNoSourceData is returned when no eligible source items exist for
	// the requested mobile in today's partition. Surfaced to API callers
	// as a 404.
	ErrNoSourceData = errors.New("no source data found for the given mobile")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")
)
