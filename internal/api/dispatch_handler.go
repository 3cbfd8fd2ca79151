package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taskrelay/dispatch-api/internal/api/shared"
	"github.com/taskrelay/dispatch-api/internal/domain"
	"github.com/taskrelay/dispatch-api/internal/platform/logger"
	"github.com/taskrelay/dispatch-api/internal/service"
)

// DispatchService is the application surface the handler depends on.
// Implemented by service.DispatchService.
type DispatchService interface {
	Execute(ctx context.Context, mobile, speed string, delay int) ([]string, error)
	Stop(ctx context.Context, mobile string) (int64, error)
	Log(ctx context.Context, mobile string, status domain.TaskStatus) (*service.QueueStatus, error)
}

// ExecuteRequest represents the request body for enqueueing dispatch tasks
type ExecuteRequest struct {
	Mobile string `json:"mobile" validate:"required,numeric"`
	Speed  string `json:"speed"  validate:"required"`
	Delay  int    `json:"delay"  validate:"gte=0"`
}

// ExecuteResponse represents the response for a successful enqueue
type ExecuteResponse struct {
	Message string   `json:"message"`
	TaskIDs []string `json:"taskIds"`
}

// StopRequest represents the optional request body for stopping tasks.
// An absent body or empty mobile stops every task.
type StopRequest struct {
	Mobile string `json:"mobile,omitempty" validate:"omitempty,numeric"`
}

// StopResponse represents the response for a stop request
type StopResponse struct {
	Message string `json:"message"`
}

// TaskSummary is the per-task view returned by the log endpoint
type TaskSummary struct {
	ID          string     `json:"id"`
	Mobile      string     `json:"mobile"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// LogResponse represents the queue snapshot returned by the log endpoint
type LogResponse struct {
	QueueLength int           `json:"queueLength"`
	Processing  int           `json:"processing"`
	Tasks       []TaskSummary `json:"tasks"`
}

// DispatchHandler handles the execute/stop/log HTTP surface of the task
// engine.
type DispatchHandler struct {
	dispatch DispatchService
}

// NewDispatchHandler creates a new DispatchHandler.
func NewDispatchHandler(dispatch DispatchService) *DispatchHandler {
	return &DispatchHandler{
		dispatch: dispatch,
	}
}

// Execute handles POST /api/hamibot/execute requests.
// Enqueue failures are immediate and explicit; task execution itself is
// asynchronous and observable only through the log endpoint.
func (h *DispatchHandler) Execute(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req ExecuteRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	taskIDs, err := h.dispatch.Execute(r.Context(), req.Mobile, req.Speed, req.Delay)
	if err != nil {
		if errors.Is(err, domain.ErrNoSourceData) {
			shared.RespondWithError(w, r, http.StatusNotFound, "No data found for the given mobile")
			return
		}
		log.Error("failed to execute dispatch", "mobile", req.Mobile, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to enqueue tasks")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, ExecuteResponse{
		Message: fmt.Sprintf("Task queue created with %d items", len(taskIDs)),
		TaskIDs: taskIDs,
	})
}

// Stop handles POST /api/hamibot/stop requests. The body is optional: a
// mobile scopes the stop, no body stops everything.
func (h *DispatchHandler) Stop(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req StopRequest
	if err := shared.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	stopped, err := h.dispatch.Stop(r.Context(), req.Mobile)
	if err != nil {
		log.Error("failed to stop tasks", "mobile", req.Mobile, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to stop tasks")
		return
	}

	message := fmt.Sprintf("All tasks stopped (%d affected)", stopped)
	if req.Mobile != "" {
		message = fmt.Sprintf("Tasks for mobile %s stopped (%d affected)", req.Mobile, stopped)
	}

	shared.RespondWithJSON(w, r, http.StatusOK, StopResponse{Message: message})
}

// Log handles GET /api/hamibot/log requests. Optional query parameters
// mobile and status filter the returned task summaries.
func (h *DispatchHandler) Log(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	mobile := r.URL.Query().Get("mobile")
	status := domain.TaskStatus(r.URL.Query().Get("status"))
	if status != "" && !isValidStatusFilter(status) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid status filter")
		return
	}

	snapshot, err := h.dispatch.Log(r.Context(), mobile, status)
	if err != nil {
		log.Error("failed to read queue status", "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to read queue status")
		return
	}

	tasks := make([]TaskSummary, 0, len(snapshot.Tasks))
	for i := range snapshot.Tasks {
		tasks = append(tasks, taskToSummary(&snapshot.Tasks[i]))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, LogResponse{
		QueueLength: snapshot.QueueLength,
		Processing:  snapshot.Processing,
		Tasks:       tasks,
	})
}

// isValidStatusFilter reports whether the status query parameter names a
// real task status.
func isValidStatusFilter(status domain.TaskStatus) bool {
	switch status {
	case domain.TaskStatusPending, domain.TaskStatusProcessing,
		domain.TaskStatusCompleted, domain.TaskStatusFailed, domain.TaskStatusStopped:
		return true
	default:
		return false
	}
}

// taskToSummary converts a domain.Task to its API view.
func taskToSummary(task *domain.Task) TaskSummary {
	return TaskSummary{
		ID:          task.ID,
		Mobile:      task.Mobile,
		Status:      string(task.Status),
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
		Error:       task.Error,
	}
}
