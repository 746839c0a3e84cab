package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PoolState is the lifecycle state of a WorkerPool
type PoolState int

// Pool states. A pool only moves toward StateTerminated, except for
// StateRunning and StatePaused which alternate.
const (
	StateRunning PoolState = iota
	StatePaused
	StateStopping
	StateTerminated
)

// String returns the state name used in logs
func (s PoolState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("PoolState(%d)", int(s))
	}
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int

	// QueueSize bounds the number of tasks waiting for a worker. Submit
	// blocks while the queue is full.
	QueueSize int

	// CompletionBuffer is the buffer of the completion channel.
	// If zero or negative, defaults to QueueSize.
	CompletionBuffer int

	// SlowTaskLimit is the number of slowest tasks kept in the stats.
	// If zero or negative, defaults to DefaultSlowTaskLimit.
	SlowTaskLimit int

	// FailedItemLimit bounds the set of failed items kept in the stats.
	// If zero or negative, defaults to DefaultFailedItemLimit.
	FailedItemLimit int

	// Metrics receives pool metrics, if set
	Metrics *Metrics
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:     2,
		QueueSize:       100,
		SlowTaskLimit:   DefaultSlowTaskLimit,
		FailedItemLimit: DefaultFailedItemLimit,
	}
}

// WorkerPool executes submitted tasks on a resizable set of worker
// goroutines. It applies backpressure when its queue is full, can be paused
// and resumed, and emits one Outcome per executed task on its completion
// channel, which is closed once the pool has terminated.
type WorkerPool struct {
	mu sync.Mutex

	// workAvailable wakes workers: new task, resume, resize or shutdown
	workAvailable *sync.Cond

	// spaceAvailable wakes submitters blocked on a full queue
	spaceAvailable *sync.Cond

	queue    *TaskQueue
	state    PoolState
	paused   bool
	started  bool
	coreSize int
	maxSize  int

	// workers is the number of live worker goroutines
	workers int

	// active is the number of workers executing a task
	active int

	nextWorkerID int
	warnedFull   bool

	// ctx is passed to every task; shutdown never cancels it
	ctx context.Context

	completions chan Outcome
	terminated  chan struct{}

	stats   *statsRecorder
	metrics *Metrics
	logger  *slog.Logger
}

// NewWorkerPool creates a new worker pool with the specified configuration.
// No worker runs until Start is called.
func NewWorkerPool(config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	logger = logger.With("component", "worker_pool")

	// Apply defaults for invalid config values
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = workerCount
	}
	completionBuffer := config.CompletionBuffer
	if completionBuffer <= 0 {
		completionBuffer = queueSize
	}
	slowLimit := config.SlowTaskLimit
	if slowLimit <= 0 {
		slowLimit = DefaultSlowTaskLimit
	}
	failedLimit := config.FailedItemLimit
	if failedLimit <= 0 {
		failedLimit = DefaultFailedItemLimit
	}

	p := &WorkerPool{
		queue:       NewTaskQueue(queueSize, logger),
		state:       StateRunning,
		coreSize:    workerCount,
		maxSize:     workerCount,
		ctx:         context.Background(),
		completions: make(chan Outcome, completionBuffer),
		terminated:  make(chan struct{}),
		stats:       newStatsRecorder(slowLimit, failedLimit),
		metrics:     config.Metrics,
		logger:      logger,
	}
	p.workAvailable = sync.NewCond(&p.mu)
	p.spaceAvailable = sync.NewCond(&p.mu)
	p.metrics.resized(workerCount)
	return p
}

// Start launches the workers. ctx is passed to every task execution. Calling
// Start more than once, or after termination, has no effect.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.state == StateTerminated {
		return
	}
	p.started = true
	p.ctx = ctx

	p.logger.Info("starting worker pool",
		"worker_count", p.coreSize,
		"queue_cap", p.queue.Cap())
	p.spawnLocked()
}

// Submit adds a task to the queue. While the queue is full the caller blocks
// until a worker claims a task, the pool shuts down, or ctx is done.
// Returns ErrPoolShutdown once Shutdown or ShutdownNow has been called.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return ErrNilTask
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunning {
		return ErrPoolShutdown
	}

	if p.queue.Full() {
		if !p.warnedFull {
			p.warnedFull = true
			p.logger.Warn("task queue is full, submissions will block until a worker is free",
				"queue_cap", p.queue.Cap(),
				"pool_size", p.coreSize)
		}

		stop := context.AfterFunc(ctx, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.spaceAvailable.Broadcast()
		})
		defer stop()

		for p.queue.Full() && p.state == StateRunning {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.spaceAvailable.Wait()
		}
		if p.state != StateRunning {
			return ErrPoolShutdown
		}
	}

	if err := p.queue.Enqueue(task); err != nil {
		return err
	}
	p.metrics.submitted(p.queue.Len())
	p.workAvailable.Broadcast()
	return nil
}

// Pause stops workers from claiming queued tasks. Tasks already executing
// run to completion and submissions are still accepted. A stopping pool can
// be paused while its queue drains.
func (p *WorkerPool) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateTerminated || p.paused {
		return
	}
	p.paused = true
	p.logger.Info("worker pool paused",
		"active", p.active,
		"queue_len", p.queue.Len())
}

// Resume lets workers claim queued tasks again
func (p *WorkerPool) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.paused || p.state == StateTerminated {
		return
	}
	p.paused = false
	p.workAvailable.Broadcast()
	p.logger.Info("worker pool resumed", "queue_len", p.queue.Len())
}

// SetSize changes the number of workers. Growing raises the upper bound
// before the core size and shrinking lowers the core size first, so the core
// never exceeds the upper bound. Surplus workers exit after their current task.
func (p *WorkerPool) SetSize(n int) error {
	if n <= 0 {
		p.logger.Warn("ignoring invalid pool size", "size", n)
		return fmt.Errorf("%w: %d", ErrInvalidPoolSize, n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateTerminated || n == p.coreSize {
		return nil
	}

	previous := p.coreSize
	if n > p.maxSize {
		p.maxSize = n
		p.coreSize = n
	} else {
		p.coreSize = n
		p.maxSize = n
	}

	p.logger.Info("worker pool resized", "previous_size", previous, "size", n)
	p.metrics.resized(n)

	if p.started {
		p.spawnLocked()
	}
	p.workAvailable.Broadcast()
	return nil
}

// Shutdown stops accepting tasks and lets the workers drain the queue. A
// paused pool keeps its queue until resumed. The pool terminates once the
// last worker has exited.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunning {
		return
	}
	p.state = StateStopping
	p.queue.Close()
	p.logger.Info("shutting down worker pool",
		"queue_len", p.queue.Len(),
		"active", p.active,
		"paused", p.paused)

	p.workAvailable.Broadcast()
	p.spaceAvailable.Broadcast()
	p.tryTerminateLocked()
}

// ShutdownNow stops accepting tasks and removes every queued task, returning
// them in submission order. Tasks already executing are not interrupted.
func (p *WorkerPool) ShutdownNow() []Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateTerminated {
		return nil
	}
	p.state = StateStopping
	p.paused = false
	p.queue.Close()
	abandoned := p.queue.DrainAll()

	p.logger.Info("shutting down worker pool immediately",
		"abandoned", len(abandoned),
		"active", p.active)
	p.metrics.abandoned(len(abandoned))

	p.workAvailable.Broadcast()
	p.spaceAvailable.Broadcast()
	p.tryTerminateLocked()
	return abandoned
}

// AwaitTermination blocks until the pool has terminated or ctx is done
func (p *WorkerPool) AwaitTermination(ctx context.Context) error {
	select {
	case <-p.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Completions returns the channel receiving one Outcome per executed task.
// It is closed when the pool terminates.
func (p *WorkerPool) Completions() <-chan Outcome {
	return p.completions
}

// State returns the current lifecycle state
func (p *WorkerPool) State() PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateRunning && p.paused {
		return StatePaused
	}
	return p.state
}

// Paused reports whether workers are currently held back
func (p *WorkerPool) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Size returns the configured number of workers
func (p *WorkerPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coreSize
}

// ActiveCount returns the number of workers executing a task
func (p *WorkerPool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// QueueLen returns the number of tasks waiting for a worker
func (p *WorkerPool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Stats returns a snapshot of the pool's rolling statistics
func (p *WorkerPool) Stats() PoolStats {
	return p.stats.snapshot()
}

// spawnLocked starts workers until the live count reaches the core size
func (p *WorkerPool) spawnLocked() {
	for p.workers < p.coreSize {
		p.workers++
		p.nextWorkerID++
		go p.worker(p.nextWorkerID)
	}
}

// worker processes tasks from the queue until it is retired
func (p *WorkerPool) worker(id int) {
	p.logger.Debug("starting worker", "worker_id", id)

	for {
		task, ok := p.next(id)
		if !ok {
			return
		}
		p.processTask(task, id)
	}
}

// next blocks until the worker can claim a task. It returns false when the
// worker must exit: the pool shrank below the live worker count, or the pool
// is stopping and nothing is left to drain.
func (p *WorkerPool) next(id int) (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.workers > p.coreSize {
			p.retireLocked(id, "pool shrunk")
			return nil, false
		}
		if p.state != StateRunning && p.queue.Len() == 0 {
			p.retireLocked(id, "pool stopping")
			return nil, false
		}
		if !p.paused {
			if task, ok := p.queue.Dequeue(); ok {
				p.active++
				p.metrics.started(p.queue.Len(), p.active)
				p.spaceAvailable.Broadcast()
				return task, true
			}
		}
		p.workAvailable.Wait()
	}
}

func (p *WorkerPool) retireLocked(id int, reason string) {
	p.workers--
	p.logger.Debug("stopping worker", "worker_id", id, "reason", reason)
	p.tryTerminateLocked()
}

// tryTerminateLocked completes shutdown once every worker has exited
func (p *WorkerPool) tryTerminateLocked() {
	if p.state != StateStopping || p.workers > 0 || p.queue.Len() > 0 {
		return
	}
	p.state = StateTerminated
	p.paused = false
	close(p.completions)
	close(p.terminated)
	p.logger.Info("worker pool terminated")
}

// processTask handles execution of a single task
func (p *WorkerPool) processTask(task Task, workerID int) {
	logger := p.logger.With(
		"task_id", task.ID(),
		"task_type", task.Type(),
		"worker_id", workerID,
	)
	logger.Debug("processing task", "items", len(task.Items()))

	start := time.Now()
	res, err := p.execute(task)
	out := newOutcome(task, workerID, res, err, time.Since(start))

	switch {
	case out.Fatal:
		logger.Error("task execution failed", "error", out.Err, "duration", out.Duration)
	case !out.Succeeded():
		logger.Warn("task failed, continuing", "error", out.Err, "duration", out.Duration)
	default:
		logger.Debug("task completed successfully", "duration", out.Duration)
	}

	p.stats.record(out)
	p.metrics.finished(out)

	p.mu.Lock()
	p.active--
	p.metrics.active(p.active)
	p.mu.Unlock()

	p.completions <- out
}

// execute runs the task, converting a panic into a fatal error
func (p *WorkerPool) execute(task Task) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return task.Execute(p.ctx)
}
