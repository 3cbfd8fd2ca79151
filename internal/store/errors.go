package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrNoTask is returned by TaskStore.Lock when no task is eligible for
	// leasing. Lock contention and an empty queue are indistinguishable to
	// callers and neither is an application error.
	ErrNoTask = errors.New("no lockable task")

	// ErrAlreadyConsumed is returned when the conditional consumption of a
	// source item matched zero rows: another task already flipped is_used.
	// Callers must treat this as a conflict, not a success.
	ErrAlreadyConsumed = errors.New("source item already consumed")

	// ErrConfirmRequired is returned when a destructive operation is
	// requested without its explicit confirmation flag. No state changes.
	ErrConfirmRequired = errors.New("destructive operation requires explicit confirmation")

	// ErrUpdateFailed is returned when an update operation fails, for example
	// because the entity does not exist.
	ErrUpdateFailed = errors.New("update failed")

	// Entity-specific "not found" errors

	// ErrTaskNotFound indicates that the requested task does not exist in the store.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrSourceItemNotFound indicates that the requested source item does not
	// exist in its partition.
	ErrSourceItemNotFound = fmt.Errorf("%w: source item", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
