package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskrelay/dispatch-api/internal/domain"
	"github.com/taskrelay/dispatch-api/internal/mocks"
)

// fakeDeviceStopper records remote stop calls.
type fakeDeviceStopper struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeDeviceStopper) StopDevice(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeDeviceStopper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeWorkerNotifier records EnsureRunning calls.
type fakeWorkerNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeWorkerNotifier) EnsureRunning() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func (f *fakeWorkerNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func seedItems(t *testing.T, items *mocks.MockSourceItemStore, mobile string, n int) []domain.SourceItem {
	t.Helper()

	partition := domain.TodayPartition()
	seeded := make([]domain.SourceItem, 0, n)
	for i := 0; i < n; i++ {
		item, err := domain.NewSourceItem(partition, "https://cdn.example.com/a.mp4", mobile)
		require.NoError(t, err)
		require.NoError(t, items.Create(context.Background(), item))
		seeded = append(seeded, *item)
	}
	return seeded
}

func TestDispatchServiceExecute(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	worker := &fakeWorkerNotifier{}
	svc := NewDispatchService(tasks, items, &fakeDeviceStopper{}, worker, nil)

	seeded := seedItems(t, items, "15500000001", 3)

	taskIDs, err := svc.Execute(context.Background(), "15500000001", "a", 0)
	require.NoError(t, err)

	// One task per eligible item, task_-prefixed
	require.Len(t, taskIDs, 3)
	for _, id := range taskIDs {
		assert.True(t, strings.HasPrefix(id, "task_"))
	}
	assert.Equal(t, 3, tasks.Len())

	counts, err := tasks.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[domain.TaskStatusPending])

	// Enqueueing restarts the poll worker
	assert.Equal(t, 1, worker.count())

	// Items themselves stay unconsumed until their task completes
	for _, item := range seeded {
		stored, ok := items.Get(item.Partition, item.ID)
		require.True(t, ok)
		assert.False(t, stored.IsUsed)
	}
}

func TestDispatchServiceExecuteNoSourceData(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	worker := &fakeWorkerNotifier{}
	svc := NewDispatchService(tasks, items, &fakeDeviceStopper{}, worker, nil)

	_, err := svc.Execute(context.Background(), "15500000001", "a", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoSourceData)

	// No tasks and no worker kick on an empty result
	assert.Equal(t, 0, tasks.Len())
	assert.Equal(t, 0, worker.count())
}

func TestDispatchServiceExecutePartialFailureKicksWorker(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	worker := &fakeWorkerNotifier{}
	svc := NewDispatchService(tasks, items, &fakeDeviceStopper{}, worker, nil)

	seedItems(t, items, "15500000001", 3)

	// The second insert fails mid-loop
	creates := 0
	tasks.CreateFn = func(ctx context.Context, task *domain.Task) error {
		creates++
		if creates == 2 {
			return errors.New("connection reset")
		}
		return nil
	}

	_, err := svc.Execute(context.Background(), "15500000001", "a", 0)
	require.Error(t, err)

	// The task created before the failure still gets the worker started
	assert.Equal(t, 1, worker.count())
}

func TestDispatchServiceExecuteFirstCreateFailureSkipsKick(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	worker := &fakeWorkerNotifier{}
	svc := NewDispatchService(tasks, items, &fakeDeviceStopper{}, worker, nil)

	seedItems(t, items, "15500000001", 2)

	tasks.CreateFn = func(ctx context.Context, task *domain.Task) error {
		return errors.New("connection reset")
	}

	_, err := svc.Execute(context.Background(), "15500000001", "a", 0)
	require.Error(t, err)

	// Nothing was enqueued, so there is nothing to wake the worker for
	assert.Equal(t, 0, worker.count())
}

func TestDispatchServiceExecuteSkipsConsumedAndDisabled(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	svc := NewDispatchService(tasks, items, &fakeDeviceStopper{}, &fakeWorkerNotifier{}, nil)

	partition := domain.TodayPartition()

	used, err := domain.NewSourceItem(partition, "https://cdn.example.com/a.mp4", "15500000001")
	require.NoError(t, err)
	used.IsUsed = true
	require.NoError(t, items.Create(context.Background(), used))

	disabled, err := domain.NewSourceItem(partition, "https://cdn.example.com/b.mp4", "15500000001")
	require.NoError(t, err)
	disabled.Disabled = true
	require.NoError(t, items.Create(context.Background(), disabled))

	eligible, err := domain.NewSourceItem(partition, "https://cdn.example.com/c.mp4", "15500000001")
	require.NoError(t, err)
	require.NoError(t, items.Create(context.Background(), eligible))

	taskIDs, err := svc.Execute(context.Background(), "15500000001", "a", 0)
	require.NoError(t, err)
	require.Len(t, taskIDs, 1)

	stored, ok := tasks.Get(taskIDs[0])
	require.True(t, ok)
	assert.Equal(t, eligible.ID, stored.DataID)
}

func TestDispatchServiceStop(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	remote := &fakeDeviceStopper{}
	svc := NewDispatchService(tasks, items, remote, &fakeWorkerNotifier{}, nil)

	seedItems(t, items, "15500000001", 2)
	_, err := svc.Execute(context.Background(), "15500000001", "a", 0)
	require.NoError(t, err)

	stopped, err := svc.Stop(context.Background(), "15500000001")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stopped)
	assert.Equal(t, 1, remote.count())

	counts, err := tasks.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.TaskStatusStopped])
	assert.Equal(t, 0, counts[domain.TaskStatusPending])
}

func TestDispatchServiceStopRemoteFailureIsBestEffort(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	remote := &fakeDeviceStopper{err: errors.New("device offline")}
	svc := NewDispatchService(tasks, items, remote, &fakeWorkerNotifier{}, nil)

	seedItems(t, items, "15500000001", 1)
	_, err := svc.Execute(context.Background(), "15500000001", "a", 0)
	require.NoError(t, err)

	// The local transition sticks even though the remote stop failed
	stopped, err := svc.Stop(context.Background(), "15500000001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stopped)
}

func TestDispatchServiceStopScopesToMobile(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	svc := NewDispatchService(tasks, items, &fakeDeviceStopper{}, &fakeWorkerNotifier{}, nil)

	seedItems(t, items, "15500000001", 1)
	seedItems(t, items, "15500000002", 1)

	_, err := svc.Execute(context.Background(), "15500000001", "a", 0)
	require.NoError(t, err)
	_, err = svc.Execute(context.Background(), "15500000002", "a", 0)
	require.NoError(t, err)

	stopped, err := svc.Stop(context.Background(), "15500000001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stopped)

	remaining, err := tasks.List(context.Background(), "15500000002", domain.TaskStatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestDispatchServiceLog(t *testing.T) {
	tasks := mocks.NewMockTaskStore()
	items := mocks.NewMockSourceItemStore()
	svc := NewDispatchService(tasks, items, &fakeDeviceStopper{}, &fakeWorkerNotifier{}, nil)

	seedItems(t, items, "15500000001", 3)
	taskIDs, err := svc.Execute(context.Background(), "15500000001", "a", 0)
	require.NoError(t, err)

	// One task moves to processing
	_, err = tasks.Lock(context.Background(), "worker_test")
	require.NoError(t, err)

	snapshot, err := svc.Log(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.QueueLength)
	assert.Equal(t, 1, snapshot.Processing)
	assert.Len(t, snapshot.Tasks, 3)

	filtered, err := svc.Log(context.Background(), "15500000001", domain.TaskStatusProcessing)
	require.NoError(t, err)
	require.Len(t, filtered.Tasks, 1)
	assert.Contains(t, taskIDs, filtered.Tasks[0].ID)
}
