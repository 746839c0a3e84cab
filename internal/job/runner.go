package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/batchrun/internal/remote"
	"github.com/phrazzld/batchrun/internal/task"
	"golang.org/x/sync/errgroup"
)

// ErrNilSource is returned when a Runner is created without a work item source
var ErrNilSource = errors.New("work item source cannot be nil")

// Status is the final state of a job
type Status string

// Job statuses
const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
	StatusNoWork    Status = "no_work"
)

// Result describes how a job ended
type Result struct {
	Status Status

	// Processed is the number of items whose task finished
	Processed int64

	Stats Stats

	// Err is the error that failed the job, if any
	Err error
}

// Config holds the job-level settings. It is built once, before the job
// starts, and is not modified afterwards.
type Config struct {
	// BatchSize is the maximum number of items per task
	BatchSize int

	// MaxItems caps the number of items read from the source; zero means no cap
	MaxItems int

	// ThreadCount is the initial number of workers
	ThreadCount int

	// QueueSize bounds the tasks waiting for a worker
	QueueSize int

	SlowTaskLimit   int
	FailedItemLimit int

	// ProgressInterval is the number of completed tasks between progress logs
	ProgressInterval int

	// Statements run once around the batches
	InitStatement      string
	PreBatchStatement  string
	PostBatchStatement string

	// ControlFile is the operator control file; empty disables it
	ControlFile         string
	ControlPollInterval time.Duration

	// Task holds the settings shared by every task
	Task task.Settings
}

// Dependencies are the collaborators a Runner drives but does not own
type Dependencies struct {
	Source     WorkItemSource
	Sessions   remote.SessionPool
	Handler    task.ResultHandler
	FailureLog *task.FailureLog
	Metrics    *task.Metrics
}

// Runner executes one job
type Runner struct {
	id       uuid.UUID
	config   Config
	deps     Dependencies
	counters *Counters
	logger   *slog.Logger

	mu        sync.Mutex
	pool      *task.WorkerPool
	startedAt time.Time

	stopped atomic.Bool
}

// NewRunner creates a Runner for one job
func NewRunner(config Config, deps Dependencies, logger *slog.Logger) (*Runner, error) {
	if deps.Source == nil {
		return nil, ErrNilSource
	}
	if deps.Sessions == nil {
		return nil, task.ErrNilSessionPool
	}
	if logger == nil {
		return nil, task.ErrNilLogger
	}
	if strings.TrimSpace(config.Task.Statement) == "" {
		return nil, task.ErrEmptyStatement
	}

	id := uuid.New()
	return &Runner{
		id:       id,
		config:   config,
		deps:     deps,
		counters: &Counters{},
		logger:   logger.With("component", "job_runner", "job_id", id),
	}, nil
}

// ID returns the job's unique identifier
func (r *Runner) ID() uuid.UUID {
	return r.id
}

// Run executes the job: the init statement, the source, the pre-batch
// statement, every batch, and the post-batch statement after a clean
// finish. Cancelling ctx stops the job like the STOP command.
func (r *Runner) Run(ctx context.Context) Result {
	r.mu.Lock()
	r.startedAt = time.Now()
	r.mu.Unlock()

	r.logger.Info("starting job", "batch_size", r.config.BatchSize, "thread_count", r.config.ThreadCount)

	result := r.run(ctx)
	result.Stats = r.Stats()
	result.Processed = result.Stats.Counters.Completed()

	r.logger.Info("job finished",
		"status", result.Status,
		"processed", result.Processed,
		"failed", result.Stats.Counters.Failed,
		"abandoned", result.Stats.Counters.Abandoned,
		"elapsed", result.Stats.Elapsed,
		"error", result.Err)
	return result
}

func (r *Runner) run(ctx context.Context) Result {
	settings := r.config.Task

	if r.stopRequested(ctx) {
		return r.stoppedEarly("init")
	}
	if r.config.InitStatement != "" {
		if err := r.runHook(ctx, settings, task.TaskTypeInit, r.config.InitStatement); err != nil {
			return r.failed(fmt.Errorf("init task failed: %w", err))
		}
	}

	if r.stopRequested(ctx) {
		return r.stoppedEarly("source open")
	}
	source := r.deps.Source
	if err := source.Open(ctx); err != nil {
		return r.failed(fmt.Errorf("failed to open work item source: %w", err))
	}
	defer func() {
		if err := source.Close(); err != nil {
			r.logger.Warn("failed to close work item source", "error", err)
		}
	}()

	if p, ok := source.(BatchRefProvider); ok {
		settings.BatchRef = p.BatchRef()
	}

	total := source.TotalCount()
	if total <= 0 && !source.HasNext() {
		r.logger.Info("nothing to process")
		return Result{Status: StatusNoWork}
	}
	expected := int64(total)
	if r.config.MaxItems > 0 && (total < 0 || total > r.config.MaxItems) {
		expected = int64(r.config.MaxItems)
	}
	r.counters.SetExpected(expected)
	r.logger.Info("work items found", "total", total, "expected", expected)

	if r.stopRequested(ctx) {
		return r.stoppedEarly("pre-batch")
	}
	if r.config.PreBatchStatement != "" {
		if err := r.runHook(ctx, settings, task.TaskTypePreBatch, r.config.PreBatchStatement); err != nil {
			return r.failed(fmt.Errorf("pre-batch task failed: %w", err))
		}
	}

	factory, err := task.NewProcessTaskFactory(
		settings,
		r.deps.Sessions,
		r.deps.Handler,
		r.deps.FailureLog,
		r.logger,
	)
	if err != nil {
		return r.failed(err)
	}

	pool := task.NewWorkerPool(task.WorkerPoolConfig{
		WorkerCount:     r.config.ThreadCount,
		QueueSize:       r.config.QueueSize,
		SlowTaskLimit:   r.config.SlowTaskLimit,
		FailedItemLimit: r.config.FailedItemLimit,
		Metrics:         r.deps.Metrics,
	}, r.logger)
	r.mu.Lock()
	r.pool = pool
	stopped := r.stopped.Load()
	r.mu.Unlock()
	if stopped {
		pool.ShutdownNow()
	}

	// tasks run on a context that outlives cancellation so Stop never
	// interrupts an executing task
	pool.Start(context.WithoutCancel(ctx))

	stopOnCancel := context.AfterFunc(ctx, func() {
		r.logger.Info("job cancelled")
		r.Stop()
	})
	defer stopOnCancel()

	dispatcher := NewDispatcher(source, factory, pool, r.counters,
		r.config.BatchSize, r.config.MaxItems, r.logger)
	monitor := NewMonitor(pool, r.counters, r.config.ProgressInterval, r.Stats, r.logger)

	watchCtx, stopWatching := context.WithCancel(context.WithoutCancel(ctx))
	watcher := NewCommandWatcher(r.config.ControlFile, r.config.ControlPollInterval, pool, r.Stop, r.logger)

	control := new(errgroup.Group)
	control.Go(func() error {
		return watcher.Run(watchCtx)
	})

	work := new(errgroup.Group)
	work.Go(func() error {
		return dispatcher.Run(ctx)
	})
	work.Go(func() error {
		return monitor.Run(ctx)
	})

	workErr := work.Wait()
	stopWatching()
	_ = control.Wait()

	switch {
	case r.stopped.Load(), ctx.Err() != nil:
		return Result{Status: StatusStopped}
	case workErr != nil:
		return r.failed(workErr)
	}

	snap := r.counters.Snapshot()
	if snap.TasksSubmitted == 0 {
		r.logger.Info("no work items submitted")
		return Result{Status: StatusNoWork}
	}

	if r.config.PostBatchStatement != "" {
		if err := r.runHook(ctx, settings, task.TaskTypePostBatch, r.config.PostBatchStatement); err != nil {
			return r.failed(fmt.Errorf("post-batch task failed: %w", err))
		}
	}
	return Result{Status: StatusSucceeded}
}

// runHook executes an item-less statement task on the calling goroutine
func (r *Runner) runHook(ctx context.Context, settings task.Settings, taskType, statement string) error {
	factory, err := task.NewProcessTaskFactory(settings, r.deps.Sessions, r.deps.Handler, r.deps.FailureLog, r.logger)
	if err != nil {
		return err
	}
	t, err := factory.CreateStatementTask(taskType, statement)
	if err != nil {
		return err
	}

	r.logger.Info("running statement task", "task_type", taskType)
	res, err := t.Execute(ctx)
	if err != nil {
		return err
	}
	if res.Failure != nil {
		r.logger.Warn("statement task failed, continuing", "task_type", taskType, "error", res.Failure)
	}
	return nil
}

// stopRequested reports whether Stop was called or ctx is done
func (r *Runner) stopRequested(ctx context.Context) bool {
	return r.stopped.Load() || ctx.Err() != nil
}

func (r *Runner) stoppedEarly(step string) Result {
	r.logger.Info("stop requested, skipping remaining steps", "next_step", step)
	return Result{Status: StatusStopped}
}

func (r *Runner) failed(err error) Result {
	r.logger.Error("job failed", "error", err)
	return Result{Status: StatusFailed, Err: err}
}

// Stop ends the job: queued tasks are abandoned and executing tasks finish.
// Stop before dispatch starts prevents it; Stop after the pool has
// terminated is ignored.
func (r *Runner) Stop() {
	r.mu.Lock()
	pool := r.pool
	if r.stopped.Load() || (pool != nil && pool.State() == task.StateTerminated) {
		r.mu.Unlock()
		return
	}
	r.stopped.Store(true)
	r.mu.Unlock()

	if pool == nil {
		r.logger.Info("job stopped before dispatch")
		return
	}

	abandoned := pool.ShutdownNow()
	r.counters.AddAbandoned(abandoned)
	r.logger.Info("job stopped", "abandoned_tasks", len(abandoned))
}

// Stats returns a snapshot of the job's progress
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	pool := r.pool
	startedAt := r.startedAt
	r.mu.Unlock()

	stats := Stats{
		JobID:     r.id,
		StartedAt: startedAt,
		Counters:  r.counters.Snapshot(),
	}
	if !startedAt.IsZero() {
		stats.Elapsed = time.Since(startedAt)
	}
	if pool != nil {
		stats.PoolState = pool.State()
		stats.Paused = pool.Paused()
		stats.PoolSize = pool.Size()
		stats.Active = pool.ActiveCount()
		stats.QueueLen = pool.QueueLen()
		stats.TaskTiming = pool.Stats()
	}
	stats.computeRates()
	return stats
}
