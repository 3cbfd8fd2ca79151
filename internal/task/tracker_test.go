package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskrelay/dispatch-api/internal/domain"
	"github.com/taskrelay/dispatch-api/internal/mocks"
	"github.com/taskrelay/dispatch-api/internal/store"
)

// seedTaskWithItem creates a source item and a matching leased task in
// the mock stores.
func seedTaskWithItem(
	t *testing.T,
	tasks *mocks.MockTaskStore,
	items *mocks.MockSourceItemStore,
) *domain.Task {
	t.Helper()
	ctx := context.Background()

	item, err := domain.NewSourceItem("20260828", "https://cdn.example.com/a.mp4", "15500000001")
	require.NoError(t, err)
	require.NoError(t, items.Create(ctx, item))

	task, err := domain.NewTask("15500000001", "a", 0, item.ID, item.Partition)
	require.NoError(t, err)
	require.NoError(t, tasks.Create(ctx, task))

	leased, err := tasks.Lock(ctx, "worker_test")
	require.NoError(t, err)
	require.Equal(t, task.ID, leased.ID)

	return leased
}

func TestTrackerComplete(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	tracker := NewTracker(tasks, items, nil)

	leased := seedTaskWithItem(t, tasks, items)

	err := tracker.Complete(context.Background(), leased)
	require.NoError(t, err)

	// The source item must be flipped to used
	item, ok := items.Get(leased.Partition, leased.DataID)
	require.True(t, ok)
	assert.True(t, item.IsUsed)

	// The queue drained with this completion, so it was compacted
	assert.Equal(t, 0, tasks.Len())
	assert.Equal(t, 1, tasks.DeleteAllCalls)
	assert.Equal(t, 1, tasks.UnlockAllCalls)
}

func TestTrackerCompleteConflictDowngradesTask(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	tracker := NewTracker(tasks, items, nil)

	leased := seedTaskWithItem(t, tasks, items)

	// Another task consumed the item first
	require.NoError(t, items.Consume(context.Background(), leased.Partition, leased.DataID))

	err := tracker.Complete(context.Background(), leased)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrAlreadyConsumed)

	stored, ok := tasks.Get(leased.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "already consumed")

	// A conflicted completion never triggers compaction
	assert.Equal(t, 0, tasks.DeleteAllCalls)
}

func TestTrackerCompleteSkipsCompactionWhileWorkRemains(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	tracker := NewTracker(tasks, items, nil)

	leased := seedTaskWithItem(t, tasks, items)

	// A second pending task keeps the queue from draining
	other, err := domain.NewTask("15500000002", "a", 0, leased.DataID, leased.Partition)
	require.NoError(t, err)
	require.NoError(t, tasks.Create(context.Background(), other))

	require.NoError(t, tracker.Complete(context.Background(), leased))

	assert.Equal(t, 0, tasks.DeleteAllCalls)
	assert.Equal(t, 2, tasks.Len())
}

func TestTrackerFail(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	tracker := NewTracker(tasks, items, nil)

	leased := seedTaskWithItem(t, tasks, items)

	cause := errors.New("run script: provider unavailable")
	require.NoError(t, tracker.Fail(context.Background(), leased, cause))

	stored, ok := tasks.Get(leased.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, cause.Error(), stored.Error)
	assert.Empty(t, stored.LockedBy)
	assert.Nil(t, stored.LockedAt)
	require.NotNil(t, stored.CompletedAt)

	// The source item stays available for a future attempt
	item, ok := items.Get(leased.Partition, leased.DataID)
	require.True(t, ok)
	assert.False(t, item.IsUsed)

	// Failures never compact, even though the queue is now drained
	assert.Equal(t, 0, tasks.DeleteAllCalls)
}

func TestTrackerCompleteReleaseFailure(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	tracker := NewTracker(tasks, items, nil)

	leased := seedTaskWithItem(t, tasks, items)

	storeErr := errors.New("connection reset")
	tasks.ReleaseFn = func(ctx context.Context, taskID string, status domain.TaskStatus, errMsg string) error {
		return storeErr
	}

	err := tracker.Complete(context.Background(), leased)
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)

	// The item must not be consumed when the completion never stuck
	assert.Equal(t, 0, items.ConsumeCalls)
}
