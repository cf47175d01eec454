// Package tasks runs dispatched commands asynchronously with bounded,
// jittered retry. Work travels through the job queue contracts: the
// default backend is the in-memory queue, retries are nacked back with
// a delay, and workers never sleep and never panic their way through
// control flow.
package tasks

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/knightjoel/zpark/core"
)

type TaskState string

const (
	StatePending          TaskState = "pending"
	StateExecuting        TaskState = "executing"
	StateSuccess          TaskState = "success"
	StateTransientFailure TaskState = "transient_failure"
	StatePermanentFailure TaskState = "permanent_failure"
	StateGiveUp           TaskState = "give_up"
)

// Attempt describes where a task stands in its retry sequence. Number
// counts prior retries, so the first execution reports zero.
type Attempt struct {
	Number      int
	MaxAttempts int
	LastErr     error
}

// Notifier is told about transient failures before the retry is
// scheduled. Implementations decide whether the episode warrants a
// user-visible message.
type Notifier interface {
	NotifyFailure(ctx context.Context, req core.TaskRequest, attempt Attempt) error
}

type task struct {
	id      string
	req     core.TaskRequest
	attempt int
}

var classJobIDs = map[string]string{
	core.TaskClassReport:  core.JobIDCommandReport,
	core.TaskClassMessage: core.JobIDAlertMessage,
}

type Option func(*Executor)

func WithLogger(logger core.Logger) Option {
	return func(e *Executor) { e.logger = glog.Ensure(logger) }
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(e *Executor) { e.metrics = metrics }
}

// WithRandFloat overrides the jitter source. Tests pin it.
func WithRandFloat(fn func() float64) Option {
	return func(e *Executor) {
		if fn != nil {
			e.randFloat = fn
		}
	}
}

// WithScheduler overrides how the in-memory queue defers nacked
// re-enqueues. Tests replace the timer with an immediate call.
func WithScheduler(fn func(delay time.Duration, run func())) Option {
	return func(e *Executor) {
		if fn != nil {
			e.schedule = fn
		}
	}
}

func WithQueueDepth(depth int) Option {
	return func(e *Executor) {
		if depth > 0 {
			e.queueDepth = depth
		}
	}
}

// WithQueue routes submissions through an external queue backend
// instead of the in-memory one. Retry delays then ride on the nack
// options, so the backend owns the timer.
func WithQueue(enqueuer core.JobEnqueuer, dequeuer core.JobDequeuer) Option {
	return func(e *Executor) {
		if enqueuer != nil && dequeuer != nil {
			e.enqueuer = enqueuer
			e.dequeuer = dequeuer
		}
	}
}

// WithWorkerHook observes the executor's lifecycle events.
func WithWorkerHook(hook core.JobWorkerHook) Option {
	return func(e *Executor) { e.hook = hook }
}

// Executor is a fixed worker pool over a job queue. Each retry class
// carries its own backoff schedule from configuration. Runs are
// registered in process memory and referenced from queue messages by
// task id, so a delivery for a task this process never registered is
// acked and dropped.
type Executor struct {
	classes    map[string]core.RetryClassConfig
	workers    int
	queueDepth int
	notifier   Notifier
	logger     core.Logger
	metrics    core.MetricsRecorder
	hook       core.JobWorkerHook

	randFloat func() float64
	schedule  func(delay time.Duration, run func())
	newID     func() string

	enqueuer core.JobEnqueuer
	dequeuer core.JobDequeuer
	memory   *MemoryJobQueue

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*task
	states  map[string]TaskState
	started bool
	stopped bool
}

func NewExecutor(cfg core.RetryConfig, workers int, notifier Notifier, options ...Option) *Executor {
	if workers < 1 {
		workers = 1
	}
	e := &Executor{
		classes: map[string]core.RetryClassConfig{
			core.TaskClassReport:  cfg.Report,
			core.TaskClassMessage: cfg.Message,
		},
		workers:    workers,
		queueDepth: 64,
		notifier:   notifier,
		logger:     glog.Nop(),
		metrics:    core.NopMetricsRecorder{},
		randFloat:  rand.Float64,
		newID:      uuid.NewString,
		pending:    map[string]*task{},
		states:     map[string]TaskState{},
	}
	e.schedule = func(delay time.Duration, run func()) {
		time.AfterFunc(delay, run)
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Start launches the worker pool. Workers drain until Stop is called;
// ctx bounds each task execution.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return executorStateError("tasks: executor already started")
	}
	e.started = true
	if e.enqueuer == nil || e.dequeuer == nil {
		e.memory = NewMemoryJobQueue(e.queueDepth, e.schedule)
		e.enqueuer = e.memory
		e.dequeuer = e.memory
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(runCtx)
	}
	return nil
}

// Stop ends intake and waits for in-flight work. The in-memory queue
// drains its buffer first; an external backend keeps its messages for
// the next start. Nacked re-enqueues after Stop are dropped.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	memory := e.memory
	cancel := e.cancel
	e.mu.Unlock()

	if memory != nil {
		memory.Close()
	} else if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	if cancel != nil {
		cancel()
	}
}

// Submit accepts a task and returns its tracking id. A full queue is
// an infrastructure failure, never a blocked caller.
func (e *Executor) Submit(ctx context.Context, req core.TaskRequest) (string, error) {
	if e == nil {
		return "", executorStateError("tasks: executor is nil")
	}
	if req.Run == nil {
		return "", submissionInvalidError("run function is required")
	}
	jobID, ok := classJobIDs[req.Class]
	if !ok {
		return "", submissionInvalidError("unknown retry class " + req.Class)
	}

	t := &task{id: e.newID(), req: req}
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return "", executorStateError("tasks: executor is not running")
	}
	e.pending[t.id] = t
	e.states[t.id] = StatePending
	enqueuer := e.enqueuer
	e.mu.Unlock()

	err := enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          jobID,
		Parameters:     map[string]any{"task_id": t.id, "task": req.Name},
		IdempotencyKey: t.id,
	})
	if err != nil {
		e.mu.Lock()
		delete(e.pending, t.id)
		e.states[t.id] = StatePermanentFailure
		e.mu.Unlock()
		if errors.Is(err, ErrQueueFull) {
			return "", queueFullError(req.Name)
		}
		return "", submissionBackendError(req.Name, err)
	}
	return t.id, nil
}

// State reports the last observed state of a task id.
func (e *Executor) State(taskID string) (TaskState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.states[taskID]
	return state, ok
}

func (e *Executor) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		delivery, err := e.dequeuer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			e.logger.Error("task dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if delivery == nil {
			continue
		}
		e.run(ctx, delivery)
	}
}

func (e *Executor) run(ctx context.Context, delivery core.JobDelivery) {
	msg := delivery.Message()
	t := e.lookup(msg)
	if t == nil {
		// a redelivery for a run this process never registered, most
		// likely queued before a restart
		e.logger.Warn("dropping delivery for unknown task", "message", msg)
		e.ack(ctx, delivery)
		return
	}

	class := e.classes[t.req.Class]
	e.setState(t.id, StateExecuting)
	started := time.Now()
	event := core.JobWorkerEvent{Message: msg, Attempt: t.attempt, StartedAt: started}
	e.hookStart(ctx, event)

	err := t.req.Run(ctx)
	event.Duration = time.Since(started)
	event.Err = err
	e.metrics.ObserveHistogram(ctx, "tasks.execution_duration_seconds",
		event.Duration.Seconds(), map[string]string{"task": t.req.Name})

	if err == nil {
		e.finish(t.id, StateSuccess)
		e.metrics.IncCounter(ctx, "tasks.completed", 1, map[string]string{"task": t.req.Name, "outcome": "success"})
		e.logger.Debug("task completed", "task_id", t.id, "task", t.req.Name, "attempt", t.attempt)
		e.ack(ctx, delivery)
		e.hookSuccess(ctx, event)
		return
	}

	if !core.IsTransientBackend(err) {
		e.finish(t.id, StatePermanentFailure)
		e.metrics.IncCounter(ctx, "tasks.completed", 1, map[string]string{"task": t.req.Name, "outcome": "permanent_failure"})
		e.logger.Error("task failed permanently",
			"task_id", t.id, "task", t.req.Name, "attempt", t.attempt, "error", err)
		e.nack(ctx, delivery, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
		e.hookFailure(ctx, event)
		return
	}

	attempt := Attempt{Number: t.attempt, MaxAttempts: class.MaxAttempts, LastErr: err}
	e.notify(ctx, t, attempt)

	if t.attempt+1 >= class.MaxAttempts {
		e.finish(t.id, StateGiveUp)
		e.metrics.IncCounter(ctx, "tasks.completed", 1, map[string]string{"task": t.req.Name, "outcome": "give_up"})
		e.logger.Error("task retries exhausted",
			"task_id", t.id, "task", t.req.Name, "attempts", t.attempt+1, "error", err)
		e.nack(ctx, delivery, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
		e.hookFailure(ctx, event)
		return
	}

	delay := e.backoffDelay(class, t.attempt)
	e.mu.Lock()
	t.attempt++
	e.states[t.id] = StateTransientFailure
	e.mu.Unlock()
	e.logger.Warn("task failed, retry scheduled",
		"task_id", t.id, "task", t.req.Name, "attempt", attempt.Number, "delay", delay, "error", err)

	e.nack(ctx, delivery, core.JobNackOptions{Delay: delay, Requeue: true, Reason: err.Error()})
	event.Delay = delay
	e.hookRetry(ctx, event)
}

func (e *Executor) lookup(msg *core.JobExecutionMessage) *task {
	if msg == nil {
		return nil
	}
	taskID, _ := msg.Parameters["task_id"].(string)
	if taskID == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending[taskID]
}

func (e *Executor) finish(taskID string, state TaskState) {
	e.mu.Lock()
	e.states[taskID] = state
	delete(e.pending, taskID)
	e.mu.Unlock()
}

func (e *Executor) ack(ctx context.Context, delivery core.JobDelivery) {
	if err := delivery.Ack(ctx); err != nil {
		e.logger.Warn("delivery ack failed", "error", err)
	}
}

func (e *Executor) nack(ctx context.Context, delivery core.JobDelivery, opts core.JobNackOptions) {
	if err := delivery.Nack(ctx, opts); err != nil {
		e.logger.Warn("delivery nack failed", "requeue", opts.Requeue, "error", err)
	}
}

func (e *Executor) notify(ctx context.Context, t *task, attempt Attempt) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyFailure(ctx, t.req, attempt); err != nil {
		// notification delivery is best effort; the retry schedule
		// does not depend on it
		e.logger.Error("failure notification not delivered",
			"task_id", t.id, "task", t.req.Name, "error", err)
	}
}

func (e *Executor) hookStart(ctx context.Context, event core.JobWorkerEvent) {
	if e.hook != nil {
		e.hook.OnStart(ctx, event)
	}
}

func (e *Executor) hookSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if e.hook != nil {
		e.hook.OnSuccess(ctx, event)
	}
}

func (e *Executor) hookFailure(ctx context.Context, event core.JobWorkerEvent) {
	if e.hook != nil {
		e.hook.OnFailure(ctx, event)
	}
}

func (e *Executor) hookRetry(ctx context.Context, event core.JobWorkerEvent) {
	if e.hook != nil {
		e.hook.OnRetry(ctx, event)
	}
}

// backoffDelay applies full jitter: uniform over [0, min(base·2^n, max)].
func (e *Executor) backoffDelay(class core.RetryClassConfig, attempt int) time.Duration {
	base := float64(class.BaseDelay)
	capped := base * math.Pow(2, float64(attempt))
	if maximum := float64(class.MaxDelay); capped > maximum {
		capped = maximum
	}
	return time.Duration(e.randFloat() * capped)
}

func (e *Executor) setState(taskID string, state TaskState) {
	e.mu.Lock()
	e.states[taskID] = state
	e.mu.Unlock()
}

var _ core.TaskSubmitter = (*Executor)(nil)
