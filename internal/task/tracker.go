package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taskrelay/dispatch-api/internal/domain"
	"github.com/taskrelay/dispatch-api/internal/platform/logger"
	"github.com/taskrelay/dispatch-api/internal/redact"
	"github.com/taskrelay/dispatch-api/internal/store"
)

// CompletionTracker records task outcomes after the executor returns.
type CompletionTracker interface {
	// Complete finalizes a task whose remote calls succeeded.
	Complete(ctx context.Context, task *domain.Task) error

	// Fail finalizes a task whose remote calls (or source lookup) failed.
	Fail(ctx context.Context, task *domain.Task, cause error) error
}

// Tracker finalizes task state in the store, consumes source items, and
// compacts the queue when it drains.
type Tracker struct {
	tasks  store.TaskStore
	items  store.SourceItemStore
	logger *slog.Logger
}

// NewTracker creates a new Tracker.
func NewTracker(tasks store.TaskStore, items store.SourceItemStore, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}

	return &Tracker{
		tasks:  tasks,
		items:  items,
		logger: log,
	}
}

// Complete marks the task completed and then consumes its source item with
// a conditional update. If the item was already consumed by another task,
// the outcome is downgraded to failed even though the remote call
// succeeded: recording a second success would double-count the item.
// After a completion that sticks, the drain check runs.
func (t *Tracker) Complete(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, t.logger)

	if err := t.tasks.Release(ctx, task.ID, domain.TaskStatusCompleted, ""); err != nil {
		log.Error("failed to mark task completed",
			"task_id", task.ID,
			"error", err)
		return fmt.Errorf("failed to mark task completed: %w", err)
	}

	err := t.items.Consume(ctx, task.Partition, task.DataID)
	if errors.Is(err, store.ErrAlreadyConsumed) {
		log.Warn("source item already consumed, downgrading task to failed",
			"task_id", task.ID,
			"data_id", task.DataID,
			"partition", task.Partition)

		msg := fmt.Sprintf("source item %s already consumed by another task", task.DataID)
		if relErr := t.tasks.Release(ctx, task.ID, domain.TaskStatusFailed, msg); relErr != nil {
			return fmt.Errorf("failed to downgrade conflicted task: %w", relErr)
		}
		return fmt.Errorf("conflict on source item %s: %w", task.DataID, err)
	}
	if err != nil {
		log.Error("failed to consume source item",
			"task_id", task.ID,
			"data_id", task.DataID,
			"error", err)

		if relErr := t.tasks.Release(ctx, task.ID, domain.TaskStatusFailed, redact.Error(err)); relErr != nil {
			return fmt.Errorf("failed to record consumption failure: %w", relErr)
		}
		return fmt.Errorf("failed to consume source item: %w", err)
	}

	log.Info("task completed",
		"task_id", task.ID,
		"mobile", task.Mobile,
		"data_id", task.DataID)

	t.compactIfDrained(ctx)
	return nil
}

// Fail marks the task failed and records the cause. Tasks are never
// retried automatically; the lease timeout only reclaims tasks that were
// never released.
func (t *Tracker) Fail(ctx context.Context, task *domain.Task, cause error) error {
	log := logger.FromContextOrDefault(ctx, t.logger)

	// Task error records are served back over the log endpoint, so
	// credentials embedded in provider or database errors must not
	// survive into them.
	msg := redact.Error(cause)

	if err := t.tasks.Release(ctx, task.ID, domain.TaskStatusFailed, msg); err != nil {
		log.Error("failed to mark task failed",
			"task_id", task.ID,
			"error", err)
		return fmt.Errorf("failed to mark task failed: %w", err)
	}

	log.Warn("task failed",
		"task_id", task.ID,
		"mobile", task.Mobile,
		"error", msg)

	return nil
}

// compactIfDrained deletes every task record once nothing is pending or
// processing. This is a deliberate, history-destroying compaction: the
// queue is its own record only while work is outstanding. UnlockAll runs
// first so no stale lease survives into the delete.
func (t *Tracker) compactIfDrained(ctx context.Context) {
	log := logger.FromContextOrDefault(ctx, t.logger)

	drained, err := t.tasks.IsDrained(ctx)
	if err != nil {
		log.Error("failed to check drain state", "error", err)
		return
	}
	if !drained {
		return
	}

	if _, err := t.tasks.UnlockAll(ctx); err != nil {
		log.Error("failed to unlock tasks before compaction", "error", err)
		return
	}

	deleted, err := t.tasks.DeleteAll(ctx, true)
	if err != nil {
		log.Error("failed to compact drained queue", "error", err)
		return
	}

	log.Info("queue drained and compacted", "deleted", deleted)
}
