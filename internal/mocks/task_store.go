package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taskrelay/dispatch-api/internal/domain"
	"github.com/taskrelay/dispatch-api/internal/store"
)

// MockTaskStore implements store.TaskStore for testing. The default
// implementation keeps tasks in memory with real lease semantics so
// worker tests can exercise lock/release cycles without a database.
type MockTaskStore struct {
	// Function fields for customizable behavior
	CreateFn        func(ctx context.Context, task *domain.Task) error
	LockFn          func(ctx context.Context, workerID string) (*domain.Task, error)
	ReleaseFn       func(ctx context.Context, taskID string, status domain.TaskStatus, errMsg string) error
	StopTasksFn     func(ctx context.Context, mobile string) (int64, error)
	IsDrainedFn     func(ctx context.Context) (bool, error)
	UnlockAllFn     func(ctx context.Context) (int64, error)
	DeleteAllFn     func(ctx context.Context, confirm bool) (int64, error)
	ListFn          func(ctx context.Context, mobile string, status domain.TaskStatus, limit int) ([]domain.Task, error)
	CountByStatusFn func(ctx context.Context) (map[domain.TaskStatus]int, error)

	// LeaseTimeout controls when a held lease becomes reclaimable by the
	// default Lock implementation. Zero means five minutes.
	LeaseTimeout time.Duration

	// Now overrides the clock used for lease stamps when set.
	Now func() time.Time

	mu    sync.Mutex
	tasks map[string]*domain.Task

	// Call counts for verification
	LockCalls      int
	ReleaseCalls   int
	DeleteAllCalls int
	UnlockAllCalls int
}

// NewMockTaskStore creates a new mock store with initialized defaults.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		tasks: make(map[string]*domain.Task),
	}
}

func (m *MockTaskStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *MockTaskStore) leaseTimeout() time.Duration {
	if m.LeaseTimeout > 0 {
		return m.LeaseTimeout
	}
	return 5 * time.Minute
}

// Create implements the TaskStore interface
func (m *MockTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, task)
	}

	if err := task.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *task
	m.tasks[task.ID] = &clone
	return nil
}

// Lock implements the TaskStore interface. It claims the oldest pending
// task without a lease, or the oldest task whose lease has expired.
func (m *MockTaskStore) Lock(ctx context.Context, workerID string) (*domain.Task, error) {
	m.mu.Lock()
	m.LockCalls++
	m.mu.Unlock()

	if m.LockFn != nil {
		return m.LockFn(ctx, workerID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.leaseTimeout())

	var candidate *domain.Task
	for _, t := range m.tasks {
		lockable := (t.Status == domain.TaskStatusPending && t.LockedAt == nil) ||
			((t.Status == domain.TaskStatusPending || t.Status == domain.TaskStatusProcessing) &&
				t.LockedAt != nil && t.LockedAt.Before(cutoff))
		if !lockable {
			continue
		}
		if candidate == nil || t.CreatedAt.Before(candidate.CreatedAt) {
			candidate = t
		}
	}

	if candidate == nil {
		return nil, store.ErrNoTask
	}

	candidate.Status = domain.TaskStatusProcessing
	candidate.LockedBy = workerID
	lockedAt := now
	candidate.LockedAt = &lockedAt
	if candidate.StartedAt == nil {
		candidate.StartedAt = &lockedAt
	}

	clone := *candidate
	return &clone, nil
}

// Release implements the TaskStore interface
func (m *MockTaskStore) Release(
	ctx context.Context,
	taskID string,
	status domain.TaskStatus,
	errMsg string,
) error {
	m.mu.Lock()
	m.ReleaseCalls++
	m.mu.Unlock()

	if m.ReleaseFn != nil {
		return m.ReleaseFn(ctx, taskID, status, errMsg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}

	t.Status = status
	t.Error = errMsg
	t.LockedBy = ""
	t.LockedAt = nil
	if status.IsTerminal() {
		completedAt := m.now()
		t.CompletedAt = &completedAt
	}
	return nil
}

// StopTasks implements the TaskStore interface
func (m *MockTaskStore) StopTasks(ctx context.Context, mobile string) (int64, error) {
	if m.StopTasksFn != nil {
		return m.StopTasksFn(ctx, mobile)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	now := m.now()
	for _, t := range m.tasks {
		if t.Status != domain.TaskStatusPending && t.Status != domain.TaskStatusProcessing {
			continue
		}
		if mobile != "" && t.Mobile != mobile {
			continue
		}
		t.Status = domain.TaskStatusStopped
		t.LockedBy = ""
		t.LockedAt = nil
		completedAt := now
		t.CompletedAt = &completedAt
		count++
	}
	return count, nil
}

// IsDrained implements the TaskStore interface
func (m *MockTaskStore) IsDrained(ctx context.Context) (bool, error) {
	if m.IsDrainedFn != nil {
		return m.IsDrainedFn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tasks {
		if t.Status == domain.TaskStatusPending || t.Status == domain.TaskStatusProcessing {
			return false, nil
		}
	}
	return true, nil
}

// UnlockAll implements the TaskStore interface
func (m *MockTaskStore) UnlockAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	m.UnlockAllCalls++
	m.mu.Unlock()

	if m.UnlockAllFn != nil {
		return m.UnlockAllFn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, t := range m.tasks {
		if t.Status != domain.TaskStatusProcessing {
			continue
		}
		t.Status = domain.TaskStatusPending
		t.LockedBy = ""
		t.LockedAt = nil
		count++
	}
	return count, nil
}

// DeleteAll implements the TaskStore interface
func (m *MockTaskStore) DeleteAll(ctx context.Context, confirm bool) (int64, error) {
	m.mu.Lock()
	m.DeleteAllCalls++
	m.mu.Unlock()

	if m.DeleteAllFn != nil {
		return m.DeleteAllFn(ctx, confirm)
	}

	if !confirm {
		return 0, store.ErrConfirmRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	count := int64(len(m.tasks))
	m.tasks = make(map[string]*domain.Task)
	return count, nil
}

// List implements the TaskStore interface
func (m *MockTaskStore) List(
	ctx context.Context,
	mobile string,
	status domain.TaskStatus,
	limit int,
) ([]domain.Task, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, mobile, status, limit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var result []domain.Task
	for _, t := range m.tasks {
		if mobile != "" && t.Mobile != mobile {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		result = append(result, *t)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountByStatus implements the TaskStore interface
func (m *MockTaskStore) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	if m.CountByStatusFn != nil {
		return m.CountByStatusFn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[domain.TaskStatus]int)
	for _, t := range m.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

// Get returns a copy of the stored task, for test assertions.
func (m *MockTaskStore) Get(taskID string) (*domain.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return nil, false
	}
	clone := *t
	return &clone, true
}

// Len returns the number of stored tasks.
func (m *MockTaskStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
