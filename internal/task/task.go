package task

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants
const (
	// TaskTypeProcess applies the job's statement to one batch of work items
	TaskTypeProcess = "process"

	// TaskTypeInit runs once before the work item source is opened
	TaskTypeInit = "init"

	// TaskTypePreBatch runs once before the first batch is dispatched
	TaskTypePreBatch = "pre_batch"

	// TaskTypePostBatch runs once after every batch completed cleanly
	TaskTypePostBatch = "post_batch"
)

// Task represents a unit of work executed by the WorkerPool. A task is
// single-use: it is discarded after Execute returns.
// Version: 2.0
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Items returns the work items the task was created for
	Items() []string

	// Execute runs the task logic. A non-nil error is fatal for the job;
	// failures that were recorded and skipped are reported in Result.Failure.
	Execute(ctx context.Context) (Result, error)
}

// Result is what a task reports when it did not fail fatally
type Result struct {
	// Items are the work items the task accounts for
	Items []string

	// Failure is set when the batch failed and was recorded instead of
	// aborting the job
	Failure error
}

// Outcome is the typed completion record the WorkerPool emits for every
// executed task.
type Outcome struct {
	TaskID   uuid.UUID
	Type     string
	Items    []string
	Status   TaskStatus
	WorkerID int
	Duration time.Duration

	// Err is the recorded failure or the fatal error; nil on success
	Err error

	// Fatal is true when Err must abort the job
	Fatal bool
}

// Succeeded reports whether the task completed without any failure
func (o Outcome) Succeeded() bool {
	return o.Status == TaskStatusCompleted
}

// newOutcome converts the return values of Task.Execute into an Outcome
func newOutcome(t Task, workerID int, res Result, err error, elapsed time.Duration) Outcome {
	out := Outcome{
		TaskID:   t.ID(),
		Type:     t.Type(),
		Items:    res.Items,
		WorkerID: workerID,
		Duration: elapsed,
		Status:   TaskStatusCompleted,
	}
	if out.Items == nil {
		out.Items = t.Items()
	}

	switch {
	case err != nil:
		out.Status = TaskStatusFailed
		out.Err = err
		out.Fatal = true
	case res.Failure != nil:
		out.Status = TaskStatusFailed
		out.Err = res.Failure
	}
	return out
}

// itemsKey joins items into the identifier used by pool statistics
func itemsKey(items []string) string {
	return strings.Join(items, ",")
}
