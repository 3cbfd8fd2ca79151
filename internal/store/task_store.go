package store

import (
	"context"

	"github.com/taskrelay/dispatch-api/internal/domain"
)

// TaskStore defines the persistence interface for dispatch tasks,
// including the lease operations the poll worker relies on. Multiple
// worker processes may call these methods concurrently against the same
// store; implementations must make Lock a single atomic conditional
// update, never a read followed by a write.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns validation errors from the domain Task if data is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// Lock atomically claims the oldest lockable task for the given worker:
	// a pending task with no lease, or any task whose lease has aged past
	// the lease timeout. The claimed task is returned with status
	// processing and the lease fields set. Returns ErrNoTask when nothing
	// is eligible.
	Lock(ctx context.Context, workerID string) (*domain.Task, error)

	// Release sets the task to the given status and clears the lease.
	// Terminal statuses also stamp CompletedAt; errMsg is recorded when
	// non-empty. Returns ErrTaskNotFound if the task does not exist.
	Release(ctx context.Context, taskID string, status domain.TaskStatus, errMsg string) error

	// StopTasks transitions all pending and processing tasks to stopped,
	// clearing their leases. An empty mobile stops every task; otherwise
	// only tasks for that mobile are affected. Idempotent; returns the
	// number of tasks transitioned.
	StopTasks(ctx context.Context, mobile string) (int64, error)

	// IsDrained reports whether no task is pending or processing.
	IsDrained(ctx context.Context) (bool, error)

	// UnlockAll clears the lease on every processing task and returns it
	// to pending. Escape hatch after a systemic failure; returns the
	// number of tasks unlocked.
	UnlockAll(ctx context.Context) (int64, error)

	// DeleteAll removes every task record. Fails with ErrConfirmRequired
	// unless confirm is true. Intended only once the queue is drained.
	DeleteAll(ctx context.Context, confirm bool) (int64, error)

	// List returns the most recent tasks, newest first, optionally
	// filtered by mobile and/or status. Empty filter values match all.
	List(ctx context.Context, mobile string, status domain.TaskStatus, limit int) ([]domain.Task, error)

	// CountByStatus returns the number of tasks per status.
	CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error)
}
