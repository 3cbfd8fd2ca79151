package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskrelay/dispatch-api/internal/domain"
	"github.com/taskrelay/dispatch-api/internal/platform/logger"
	"github.com/taskrelay/dispatch-api/internal/store"
)

// Poll worker tuning. The cooldowns enforce the provider's per-device rate
// limit; the interval ladder turns an idle queue into progressively
// cheaper polling and eventually a full stop.
const (
	// DefaultBaseInterval is the polling interval while work is flowing.
	DefaultBaseInterval = 15 * time.Second

	// DefaultMaxInterval caps the widened interval during idle stretches.
	DefaultMaxInterval = 60 * time.Second

	// growThreshold is the consecutive-empty-poll count at which the
	// interval starts doubling.
	growThreshold = 5

	// stopThreshold is the consecutive-empty-poll count at which the
	// poller halts entirely until the next enqueue restarts it.
	stopThreshold = 10

	// CooldownTierA is the mandatory delay after a task on speed tier "a".
	CooldownTierA = 150 * time.Second

	// CooldownDefault is the mandatory delay after a task on any other tier.
	CooldownDefault = 230 * time.Second
)

// Poller states.
const (
	stateRunning = "running"
	stateStopped = "stopped"
)

// PollerConfig holds configuration for the poll worker. Zero values fall
// back to production defaults; tests inject short durations.
type PollerConfig struct {
	// WorkerID identifies this process's leases in the store.
	// Defaults to a fresh UUID.
	WorkerID string

	// BaseInterval is the polling interval while tasks are flowing.
	BaseInterval time.Duration

	// MaxInterval caps the widened interval during idle stretches.
	MaxInterval time.Duration

	// CooldownTierA and CooldownDefault are the per-tier inter-task delays.
	CooldownTierA   time.Duration
	CooldownDefault time.Duration

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Poller is the single cooperative poll worker for this process. One named
// timer drives it: each tick tries to lease exactly one task, processes it
// to completion (including the inter-task cooldown), and re-arms the
// timer. Consecutive empty polls widen the interval and eventually stop
// the timer; EnsureRunning restarts it when new work arrives.
type Poller struct {
	tasks    store.TaskStore
	items    store.SourceItemStore
	executor JobExecutor
	tracker  CompletionTracker

	workerID        string
	base            time.Duration
	max             time.Duration
	cooldownTierA   time.Duration
	cooldownDefault time.Duration
	logger          *slog.Logger
	sleep           func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	state       string
	timer       *time.Timer
	noTaskCount int
	interval    time.Duration
	kicked      bool
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewPoller creates a new Poller. It starts in the stopped state; call
// Start to arm it.
func NewPoller(
	tasks store.TaskStore,
	items store.SourceItemStore,
	executor JobExecutor,
	tracker CompletionTracker,
	cfg PollerConfig,
) *Poller {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = fmt.Sprintf("worker_%s", uuid.New())
	}

	base := cfg.BaseInterval
	if base <= 0 {
		base = DefaultBaseInterval
	}

	max := cfg.MaxInterval
	if max <= 0 {
		max = DefaultMaxInterval
	}

	cooldownA := cfg.CooldownTierA
	if cooldownA <= 0 {
		cooldownA = CooldownTierA
	}

	cooldownDefault := cfg.CooldownDefault
	if cooldownDefault <= 0 {
		cooldownDefault = CooldownDefault
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Poller{
		tasks:           tasks,
		items:           items,
		executor:        executor,
		tracker:         tracker,
		workerID:        workerID,
		base:            base,
		max:             max,
		cooldownTierA:   cooldownA,
		cooldownDefault: cooldownDefault,
		logger:          log.With("worker_id", workerID),
		sleep:           sleepContext,
		state:           stateStopped,
		interval:        base,
	}
}

// WorkerID returns the lease identity of this poller.
func (p *Poller) WorkerID() string {
	return p.workerID
}

// Start arms the poller. The context bounds the poller's lifetime; Stop or
// context cancellation halts it.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.logger.Info("poll worker starting",
		"base_interval", p.base,
		"max_interval", p.max)

	p.EnsureRunning()
}

// Stop halts the poller and waits for any in-flight tick to finish. The
// current external call is never preempted; only the cooldown and settle
// sleeps abort early.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.state = stateStopped
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("poll worker stopped")
}

// EnsureRunning restarts a stopped poller at the base interval, with the
// first poll fired immediately. Called by the enqueue path after creating
// tasks: a stopped worker would otherwise never notice them. If the poller
// is mid-poll, a kick flag makes the in-flight tick treat its next empty
// result as a fresh start instead of counting toward a stop.
func (p *Poller) EnsureRunning() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil || p.ctx.Err() != nil {
		return
	}

	if p.state == stateRunning {
		p.kicked = true
		return
	}

	p.state = stateRunning
	p.noTaskCount = 0
	p.interval = p.base
	p.kicked = false
	p.logger.Info("poll worker resuming", "interval", p.base)
	p.scheduleLocked(0)
}

// Running reports whether the poller's timer loop is live.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateRunning
}

// scheduleLocked arms the timer for the next tick. Caller must hold p.mu.
func (p *Poller) scheduleLocked(d time.Duration) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(d, p.tick)
}

// tick is the timer callback. It guards against ticks racing Stop, then
// runs one poll cycle.
func (p *Poller) tick() {
	p.mu.Lock()
	if p.state != stateRunning || p.ctx == nil || p.ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	ctx := p.ctx
	p.wg.Add(1)
	p.mu.Unlock()

	defer p.wg.Done()
	p.poll(ctx)
}

// poll runs one cycle: lease one task, process it, enforce the cooldown,
// and re-arm the timer. Task-level failures are recorded by the tracker
// and never abort the loop; store failures widen the interval as
// backpressure.
func (p *Poller) poll(ctx context.Context) {
	start := time.Now()
	ctx = logger.WithLogger(ctx, p.logger)

	task, err := p.tasks.Lock(ctx, p.workerID)
	if err != nil {
		if errors.Is(err, store.ErrNoTask) {
			p.recordEmptyPoll()
			return
		}
		p.logger.Error("failed to lock task, widening poll interval", "error", err)
		p.recordStoreError()
		return
	}

	p.recordTask()

	log := p.logger.With("task_id", task.ID, "mobile", task.Mobile)
	log.Info("task leased", "data_id", task.DataID, "partition", task.Partition)

	p.process(logger.WithLogger(ctx, log), task)
	p.cooldown(ctx, task.Speed, time.Since(start))
	p.rearm()
}

// process resolves the task's source item and hands off to the executor
// and tracker.
func (p *Poller) process(ctx context.Context, task *domain.Task) {
	item, err := p.items.GetByID(ctx, task.Partition, task.DataID)
	if err != nil {
		// No external call for a task whose source data is gone
		_ = p.tracker.Fail(ctx, task, fmt.Errorf("resolve source item: %w", err))
		return
	}

	if err := p.executor.Execute(ctx, task, item); err != nil {
		_ = p.tracker.Fail(ctx, task, err)
		return
	}

	_ = p.tracker.Complete(ctx, task)
}

// cooldown sleeps the remainder of the tier-dependent inter-task delay.
// Time already spent on the poll cycle counts toward the delay; the result
// is floored at zero. This sleep, not the timer cadence, is what holds the
// provider's per-device rate limit.
func (p *Poller) cooldown(ctx context.Context, speed string, elapsed time.Duration) {
	d := p.cooldownDefault
	if speed == domain.SpeedTierA {
		d = p.cooldownTierA
	}

	if wait := d - elapsed; wait > 0 {
		_ = p.sleep(ctx, wait)
	}
}

// recordTask resets the idle ladder after a successful lease.
func (p *Poller) recordTask() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.noTaskCount = 0
	p.interval = p.base
	p.kicked = false
	p.state = stateRunning
}

// recordEmptyPoll advances the idle ladder and re-arms (or stops) the
// timer. A kick from a concurrent enqueue resets the ladder instead, so a
// fresh task can never be stranded by a poller that was one empty poll
// from stopping.
func (p *Poller) recordEmptyPoll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateRunning || p.ctx == nil || p.ctx.Err() != nil {
		return
	}

	if p.kicked {
		p.kicked = false
		p.noTaskCount = 0
		p.interval = p.base
		p.scheduleLocked(0)
		return
	}

	p.noTaskCount++

	if p.noTaskCount >= stopThreshold {
		p.state = stateStopped
		p.timer = nil
		p.logger.Info("queue idle, poll worker halting",
			"empty_polls", p.noTaskCount)
		return
	}

	if p.noTaskCount >= growThreshold {
		doublings := p.noTaskCount - growThreshold + 1
		interval := p.base
		for i := 0; i < doublings; i++ {
			interval *= 2
			if interval >= p.max {
				interval = p.max
				break
			}
		}
		p.interval = interval
		p.logger.Debug("queue idle, widening poll interval",
			"empty_polls", p.noTaskCount,
			"interval", p.interval)
	}

	p.scheduleLocked(p.interval)
}

// recordStoreError widens the interval as backpressure on a failing
// store. Store errors never advance the idle ladder toward a halt; only
// a genuinely empty queue may stop the poller, so pending tasks are
// picked up again as soon as the store recovers.
func (p *Poller) recordStoreError() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateRunning || p.ctx == nil || p.ctx.Err() != nil {
		return
	}

	interval := p.interval * 2
	if interval > p.max {
		interval = p.max
	}
	if interval < p.base {
		interval = p.base
	}
	p.interval = interval

	p.logger.Warn("store unavailable, widening poll interval", "interval", p.interval)
	p.scheduleLocked(p.interval)
}

// rearm schedules the next tick at the base interval after a processed
// task, unless the poller stopped meanwhile.
func (p *Poller) rearm() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateRunning || p.ctx == nil || p.ctx.Err() != nil {
		return
	}

	p.scheduleLocked(p.base)
}
