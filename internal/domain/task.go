package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a dispatch task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusStopped    TaskStatus = "stopped"
)

// SpeedTierA is the speed tier with the short inter-task cooldown.
// Any other tier falls back to the default cooldown.
const SpeedTierA = "a"

// Common validation errors for Task
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptyTaskMobile    = errors.New("task mobile cannot be empty")
	ErrEmptyTaskSpeed     = errors.New("task speed cannot be empty")
	ErrEmptyTaskDataID    = errors.New("task data ID cannot be empty")
	ErrEmptyTaskPartition = errors.New("task partition cannot be empty")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
)

// Task represents one unit of queued automation work: a single source item
// to be dispatched to the remote automation provider. It carries the lease
// fields (LockedBy/LockedAt) that make the task claimable by exactly one
// worker at a time.
type Task struct {
	ID          string     `json:"id"`
	Mobile      string     `json:"mobile"`
	Speed       string     `json:"speed"`
	Delay       int        `json:"delay"`
	DataID      uuid.UUID  `json:"data_id"`
	Partition   string     `json:"partition"`
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LockedBy    string     `json:"locked_by,omitempty"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
}

// NewTask creates a new pending Task for the given source item reference.
// It generates a "task_"-prefixed identifier and stamps the creation time.
// Returns an error if validation fails.
func NewTask(mobile, speed string, delay int, dataID uuid.UUID, partition string) (*Task, error) {
	task := &Task{
		ID:        NewTaskID(),
		Mobile:    mobile,
		Speed:     speed,
		Delay:     delay,
		DataID:    dataID,
		Partition: partition,
		Status:    TaskStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// NewTaskID generates a globally unique task identifier.
func NewTaskID() string {
	return fmt.Sprintf("task_%s", uuid.New())
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == "" {
		return ErrEmptyTaskID
	}

	if t.Mobile == "" {
		return ErrEmptyTaskMobile
	}

	if t.Speed == "" {
		return ErrEmptyTaskSpeed
	}

	if t.DataID == uuid.Nil {
		return ErrEmptyTaskDataID
	}

	if t.Partition == "" {
		return ErrEmptyTaskPartition
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	return nil
}

// IsTerminal reports whether the status is a final state. Terminal tasks
// are never picked up by the lease manager again.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusStopped:
		return true
	default:
		return false
	}
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusStopped:
		return true
	default:
		return false
	}
}
