package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/batchrun/internal/task"
)

// Pool is the part of task.WorkerPool the job components drive
type Pool interface {
	Submit(ctx context.Context, t task.Task) error
	Shutdown()
	ShutdownNow() []task.Task
	Pause()
	Resume()
	SetSize(n int) error
	State() task.PoolState
	Completions() <-chan task.Outcome
}

// TaskFactory creates the task for one batch
type TaskFactory interface {
	CreateTask(items []string) (task.Task, error)
}

// Dispatcher reads work items from the source, groups them into batches and
// submits one task per batch. It is the pool's only submitter.
type Dispatcher struct {
	source    WorkItemSource
	factory   TaskFactory
	pool      Pool
	counters  *Counters
	batchSize int
	maxItems  int
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. maxItems caps the number of items read
// from the source; zero or less means no cap.
func NewDispatcher(
	source WorkItemSource,
	factory TaskFactory,
	pool Pool,
	counters *Counters,
	batchSize int,
	maxItems int,
	logger *slog.Logger,
) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Dispatcher{
		source:    source,
		factory:   factory,
		pool:      pool,
		counters:  counters,
		batchSize: batchSize,
		maxItems:  maxItems,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Run dispatches every item and then shuts the pool down so queued tasks
// drain. If the pool is shut down by someone else, Run stops early and
// returns nil. A source failure or ctx cancellation abandons queued tasks and
// is returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.pool.Shutdown()

	expected := d.counters.Expected()
	batch := make([]string, 0, d.batchSize)
	delivered := 0

	for d.source.HasNext() && (d.maxItems <= 0 || delivered < d.maxItems) {
		item, err := d.source.Next()
		if err != nil {
			d.abort("work item source failed")
			return fmt.Errorf("failed to read work item: %w", err)
		}
		if strings.TrimSpace(item) == "" {
			d.logger.Debug("skipping blank work item")
			continue
		}

		delivered++
		batch = append(batch, item)
		if len(batch) < d.batchSize {
			continue
		}

		if done, err := d.submit(ctx, batch); done {
			return err
		}
		batch = make([]string, 0, d.batchSize)
	}

	if len(batch) > 0 {
		if done, err := d.submit(ctx, batch); done {
			return err
		}
	}

	if int64(delivered) != expected {
		d.logger.Warn("work item count differs from the expected total, correcting",
			"expected", expected,
			"delivered", delivered)
		d.counters.SetExpected(int64(delivered))
	}

	d.logger.Info("all work items dispatched",
		"items", delivered,
		"tasks", d.counters.Snapshot().TasksSubmitted)
	return nil
}

// submit hands one batch to the pool. done is true when dispatching must end.
func (d *Dispatcher) submit(ctx context.Context, batch []string) (done bool, err error) {
	t, err := d.factory.CreateTask(batch)
	if err != nil {
		d.abort("failed to create task")
		return true, fmt.Errorf("failed to create task: %w", err)
	}

	err = d.pool.Submit(ctx, t)
	switch {
	case err == nil:
		d.counters.AddSubmitted(len(batch))
		return false, nil
	case errors.Is(err, task.ErrPoolShutdown):
		d.logger.Info("worker pool no longer accepts tasks, dispatching stopped",
			"unsubmitted_items", len(batch))
		return true, nil
	default:
		d.abort("submission interrupted")
		return true, fmt.Errorf("failed to submit task: %w", err)
	}
}

// abort drops every queued task
func (d *Dispatcher) abort(reason string) {
	abandoned := d.pool.ShutdownNow()
	d.counters.AddAbandoned(abandoned)
	d.logger.Error("aborting dispatch", "reason", reason, "abandoned_tasks", len(abandoned))
}
