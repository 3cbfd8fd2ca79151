package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taskrelay/dispatch-api/internal/domain"
	"github.com/taskrelay/dispatch-api/internal/platform/logger"
	"github.com/taskrelay/dispatch-api/internal/store"
)

// taskColumns is the column list every task query selects, kept in one
// place so scanTask stays in sync.
const taskColumns = `id, mobile, speed, delay_ms, data_id, partition,
	       status, error, created_at, started_at, completed_at, locked_by, locked_at`

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
// The lease operations rely on single conditional UPDATE statements so that
// any number of worker processes can share one queue safely.
type PostgresTaskStore struct {
	db           store.DBTX
	leaseTimeout time.Duration
}

// NewPostgresTaskStore creates a new PostgresTaskStore with the given lease
// timeout. A lease older than the timeout makes its task reclaimable by a
// different worker.
func NewPostgresTaskStore(db store.DBTX, leaseTimeout time.Duration) *PostgresTaskStore {
	return &PostgresTaskStore{
		db:           db,
		leaseTimeout: leaseTimeout,
	}
}

// Create persists a new task to the database.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (id, mobile, speed, delay_ms, data_id, partition, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Mobile,
		task.Speed,
		task.Delay,
		task.DataID,
		task.Partition,
		task.Status,
		task.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			"task_id", task.ID,
			"mobile", task.Mobile,
			"error", err)
		return fmt.Errorf("failed to create task: %w", MapError(err))
	}

	return nil
}

// Lock atomically claims the oldest lockable task for workerID.
//
// Eligible rows are pending tasks with no lease and any task whose lease
// has aged past the lease timeout; the latter is the implicit reclaim path
// for tasks stranded in processing by a crashed worker. Selection, status
// transition and lease assignment happen in one statement: the subselect
// with FOR UPDATE SKIP LOCKED is the store's find-and-modify primitive, so
// at most one concurrent caller wins each task.
func (s *PostgresTaskStore) Lock(ctx context.Context, workerID string) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET status = $1, locked_by = $2, locked_at = $3,
		    started_at = COALESCE(started_at, $3)
		WHERE id = (
			SELECT id FROM tasks
			WHERE (status = $4 AND locked_at IS NULL)
			   OR (status IN ($4, $1) AND locked_at < $5)
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns

	now := time.Now().UTC()
	staleBefore := now.Add(-s.leaseTimeout)

	row := s.db.QueryRowContext(ctx, query,
		domain.TaskStatusProcessing,
		workerID,
		now,
		domain.TaskStatusPending,
		staleBefore,
	)

	task, err := scanTask(row)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, store.ErrNoTask
		}
		log.Error("failed to lock task", "worker_id", workerID, "error", err)
		return nil, fmt.Errorf("failed to lock task: %w", err)
	}

	return task, nil
}

// Release sets the task status and clears the lease. Terminal statuses
// also stamp completed_at; errMsg is recorded when non-empty and cleared
// otherwise, so a reclaimed-and-retried task does not keep a stale error.
func (s *PostgresTaskStore) Release(ctx context.Context, taskID string, status domain.TaskStatus, errMsg string) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET status = $2, error = NULLIF($3, ''), locked_by = NULL, locked_at = NULL,
		    completed_at = CASE WHEN $4 THEN $5 ELSE completed_at END
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		taskID,
		status,
		errMsg,
		status.IsTerminal(),
		time.Now().UTC(),
	)
	if err != nil {
		log.Error("failed to release task",
			"task_id", taskID,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to release task: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrTaskNotFound
	}

	return nil
}

// StopTasks transitions all pending and processing tasks to stopped and
// clears their leases. An empty mobile matches every task.
func (s *PostgresTaskStore) StopTasks(ctx context.Context, mobile string) (int64, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET status = $1, locked_by = NULL, locked_at = NULL, completed_at = $2
		WHERE status IN ($3, $4) AND ($5 = '' OR mobile = $5)
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.TaskStatusStopped,
		time.Now().UTC(),
		domain.TaskStatusPending,
		domain.TaskStatusProcessing,
		mobile,
	)
	if err != nil {
		log.Error("failed to stop tasks", "mobile", mobile, "error", err)
		return 0, fmt.Errorf("failed to stop tasks: %w", MapError(err))
	}

	stopped, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return stopped, nil
}

// IsDrained reports whether no task is pending or processing.
func (s *PostgresTaskStore) IsDrained(ctx context.Context) (bool, error) {
	query := `
		SELECT NOT EXISTS (
			SELECT 1 FROM tasks WHERE status IN ($1, $2)
		)
	`

	var drained bool
	err := s.db.QueryRowContext(ctx, query,
		domain.TaskStatusPending,
		domain.TaskStatusProcessing,
	).Scan(&drained)
	if err != nil {
		return false, fmt.Errorf("failed to check drain state: %w", MapError(err))
	}

	return drained, nil
}

// UnlockAll returns every processing task to pending and clears its lease.
func (s *PostgresTaskStore) UnlockAll(ctx context.Context) (int64, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET status = $1, locked_by = NULL, locked_at = NULL
		WHERE status = $2
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.TaskStatusPending,
		domain.TaskStatusProcessing,
	)
	if err != nil {
		log.Error("failed to unlock tasks", "error", err)
		return 0, fmt.Errorf("failed to unlock tasks: %w", MapError(err))
	}

	unlocked, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return unlocked, nil
}

// DeleteAll removes every task record. It refuses to run without the
// explicit confirm flag.
func (s *PostgresTaskStore) DeleteAll(ctx context.Context, confirm bool) (int64, error) {
	log := logger.FromContext(ctx)

	if !confirm {
		return 0, store.ErrConfirmRequired
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks`)
	if err != nil {
		log.Error("failed to delete tasks", "error", err)
		return 0, fmt.Errorf("failed to delete tasks: %w", MapError(err))
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	log.Info("task queue compacted", "deleted", deleted)
	return deleted, nil
}

// List returns the most recent tasks, newest first, optionally filtered by
// mobile and/or status.
func (s *PostgresTaskStore) List(ctx context.Context, mobile string, status domain.TaskStatus, limit int) ([]domain.Task, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE ($1 = '' OR mobile = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, mobile, string(status), limit)
	if err != nil {
		log.Error("failed to list tasks",
			"mobile", mobile,
			"status", status,
			"error", err)
		return nil, fmt.Errorf("failed to list tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// CountByStatus returns the number of tasks per status.
func (s *PostgresTaskStore) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM tasks GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating count rows: %w", err)
	}

	return counts, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row into a domain.Task, mapping SQL NULLs onto
// the domain's optional fields.
func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var dataID uuid.UUID
	var errMsg, lockedBy sql.NullString
	var startedAt, completedAt, lockedAt sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.Mobile,
		&task.Speed,
		&task.Delay,
		&dataID,
		&task.Partition,
		&task.Status,
		&errMsg,
		&task.CreatedAt,
		&startedAt,
		&completedAt,
		&lockedBy,
		&lockedAt,
	)
	if err != nil {
		return nil, MapError(err)
	}

	task.DataID = dataID
	task.Error = errMsg.String
	task.LockedBy = lockedBy.String
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	if lockedAt.Valid {
		t := lockedAt.Time
		task.LockedAt = &t
	}

	return &task, nil
}
