package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taskrelay/dispatch-api/internal/domain"
	"github.com/taskrelay/dispatch-api/internal/platform/logger"
	"github.com/taskrelay/dispatch-api/internal/store"
)

// maxLogTasks caps how many task summaries the log surface returns.
const maxLogTasks = 100

// DeviceStopper is the outbound surface the stop operation needs from the
// automation provider: a preempt call with device identity only, no
// per-task variables. Implemented by hamibot.Client.
type DeviceStopper interface {
	StopDevice(ctx context.Context) error
}

// WorkerNotifier restarts the poll worker when new tasks are enqueued.
// Implemented by task.Poller.
type WorkerNotifier interface {
	EnsureRunning()
}

// QueueStatus is the snapshot returned by the Log operation.
type QueueStatus struct {
	// QueueLength is the number of pending tasks.
	QueueLength int

	// Processing is the number of in-flight tasks.
	Processing int

	// Tasks holds up to the 100 most recent matching task summaries,
	// newest first.
	Tasks []domain.Task
}

// DispatchService exposes the task engine to the API layer: enqueueing
// work from unconsumed source items, stopping queued work, and observing
// the queue. Asynchronous task outcomes are observable only through Log;
// there is no push notification of completion.
type DispatchService struct {
	tasks  store.TaskStore
	items  store.SourceItemStore
	remote DeviceStopper
	worker WorkerNotifier
	logger *slog.Logger
}

// NewDispatchService creates a new DispatchService.
func NewDispatchService(
	tasks store.TaskStore,
	items store.SourceItemStore,
	remote DeviceStopper,
	worker WorkerNotifier,
	log *slog.Logger,
) *DispatchService {
	if log == nil {
		log = slog.Default()
	}

	return &DispatchService{
		tasks:  tasks,
		items:  items,
		remote: remote,
		worker: worker,
		logger: log,
	}
}

// Execute reads the unconsumed, non-disabled source items for the mobile
// in today's partition, creates one pending task per item in arrival
// order, and makes sure the poll worker is running. Returns the created
// task IDs, or domain.ErrNoSourceData when no eligible items exist.
func (s *DispatchService) Execute(ctx context.Context, mobile, speed string, delay int) ([]string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	partition := domain.TodayPartition()
	items, err := s.items.FindAvailable(ctx, partition, mobile)
	if err != nil {
		return nil, fmt.Errorf("failed to find source items: %w", err)
	}

	if len(items) == 0 {
		return nil, domain.ErrNoSourceData
	}

	taskIDs := make([]string, 0, len(items))
	for i := range items {
		task, err := domain.NewTask(mobile, speed, delay, items[i].ID, partition)
		if err != nil {
			return nil, fmt.Errorf("failed to build task: %w", err)
		}

		if err := s.tasks.Create(ctx, task); err != nil {
			log.Error("failed to enqueue task",
				"mobile", mobile,
				"data_id", items[i].ID,
				"created_so_far", len(taskIDs),
				"error", err)
			// Tasks created before the failure stay queued; a stopped
			// worker still has to be told about them.
			if len(taskIDs) > 0 {
				s.worker.EnsureRunning()
			}
			return nil, fmt.Errorf("failed to enqueue task: %w", err)
		}

		taskIDs = append(taskIDs, task.ID)
	}

	// A stopped worker never notices new rows on its own
	s.worker.EnsureRunning()

	log.Info("tasks enqueued",
		"mobile", mobile,
		"speed", speed,
		"count", len(taskIDs))

	return taskIDs, nil
}

// Stop transitions matching pending/processing tasks to stopped and
// best-effort preempts whatever the device is currently running. An empty
// mobile stops everything. The remote call's failure is logged but never
// rolls back the local transition. Returns the number of tasks stopped.
func (s *DispatchService) Stop(ctx context.Context, mobile string) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	stopped, err := s.tasks.StopTasks(ctx, mobile)
	if err != nil {
		return 0, fmt.Errorf("failed to stop tasks: %w", err)
	}

	if err := s.remote.StopDevice(ctx); err != nil {
		log.Warn("best-effort remote stop failed",
			"mobile", mobile,
			"error", err)
	}

	log.Info("tasks stopped", "mobile", mobile, "count", stopped)
	return stopped, nil
}

// Log returns the current queue depth, in-flight count, and up to the 100
// most recent matching task summaries.
func (s *DispatchService) Log(ctx context.Context, mobile string, status domain.TaskStatus) (*QueueStatus, error) {
	counts, err := s.tasks.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	tasks, err := s.tasks.List(ctx, mobile, status, maxLogTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return &QueueStatus{
		QueueLength: counts[domain.TaskStatusPending],
		Processing:  counts[domain.TaskStatusProcessing],
		Tasks:       tasks,
	}, nil
}
