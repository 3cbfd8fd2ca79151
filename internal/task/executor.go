package task

import (
	"context"
	"fmt"
	"time"

	"github.com/taskrelay/dispatch-api/internal/domain"
	"github.com/taskrelay/dispatch-api/internal/platform/logger"
)

// defaultSettleDelay is how long the executor waits between the stop and
// run calls so the remote side fully terminates any prior run.
const defaultSettleDelay = 5 * time.Second

// ScriptClient is the outbound surface the executor needs from the
// automation provider. Implemented by hamibot.Client.
type ScriptClient interface {
	// StopScript preempts the running script, carrying the task variables.
	StopScript(ctx context.Context, remoteURL, speed string) error

	// RunScript starts the script with the task variables.
	RunScript(ctx context.Context, remoteURL, speed string) error
}

// JobExecutor runs the remote call sequence for one leased task.
type JobExecutor interface {
	Execute(ctx context.Context, task *domain.Task, item *domain.SourceItem) error
}

// Executor performs the stop-then-run sequence against the automation
// provider. The stop call preempts whatever the device is doing; after a
// settle delay the run call starts the script for this task's source item.
type Executor struct {
	client      ScriptClient
	settleDelay time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor with the production settle delay.
func NewExecutor(client ScriptClient) *Executor {
	return &Executor{
		client:      client,
		settleDelay: defaultSettleDelay,
		sleep:       sleepContext,
	}
}

// Execute runs stop → settle → run for the task. A stop failure is a hard
// failure: the run call is never attempted on a device that may still be
// executing the previous script.
func (e *Executor) Execute(ctx context.Context, task *domain.Task, item *domain.SourceItem) error {
	log := logger.FromContext(ctx)

	if err := e.client.StopScript(ctx, item.URL, task.Speed); err != nil {
		return fmt.Errorf("stop script: %w", err)
	}

	log.Debug("script stopped, settling before run",
		"task_id", task.ID,
		"settle_delay", e.settleDelay)

	if err := e.sleep(ctx, e.settleDelay); err != nil {
		return fmt.Errorf("settle interrupted: %w", err)
	}

	if err := e.client.RunScript(ctx, item.URL, task.Speed); err != nil {
		return fmt.Errorf("run script: %w", err)
	}

	return nil
}

// sleepContext waits for d or until the context is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
