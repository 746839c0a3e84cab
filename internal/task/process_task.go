package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/batchrun/internal/remote"
)

// Settings is the job-wide configuration shared by every ProcessTask. It is
// built once and must not be modified afterwards.
type Settings struct {
	// Statement is the remote operation applied to each batch
	Statement string

	// Language selects the statement's query language
	Language string

	// TimeZone is applied to the remote session, when set
	TimeZone *time.Location

	// BindMode selects how items are bound to the request
	BindMode remote.BindMode

	// Delimiter joins items in BindString mode and separates item and
	// message in the failure log
	Delimiter string

	// Variables are custom named string variables added to every request
	Variables map[string]string

	// BatchRef is the reference reported by the work item source, if any
	BatchRef string

	// FailOnError aborts the job when a batch fails for good
	FailOnError bool

	Retry RetryPolicy
}

// ResultHandler consumes the result sequence of a successful submission
type ResultHandler interface {
	HandleResult(ctx context.Context, items []string, res remote.Result) error
}

// ResultHandlerFunc adapts a function to ResultHandler
type ResultHandlerFunc func(ctx context.Context, items []string, res remote.Result) error

// HandleResult calls f
func (f ResultHandlerFunc) HandleResult(ctx context.Context, items []string, res remote.Result) error {
	return f(ctx, items, res)
}

// DrainResults reads and discards every value of a result sequence
var DrainResults ResultHandler = ResultHandlerFunc(
	func(ctx context.Context, items []string, res remote.Result) error {
		for res.Next() {
		}
		return res.Err()
	},
)

// ProcessTask applies the job's statement to one batch of work items,
// retrying transient remote failures.
type ProcessTask struct {
	id         uuid.UUID
	taskType   string
	items      []string
	settings   *Settings
	sessions   remote.SessionPool
	handler    ResultHandler
	failureLog *FailureLog
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error

	retryCount int
	attempts   int
	status     TaskStatus
}

// NewProcessTask creates a task for one batch
func NewProcessTask(
	taskType string,
	items []string,
	settings *Settings,
	sessions remote.SessionPool,
	handler ResultHandler,
	failureLog *FailureLog,
	logger *slog.Logger,
) (*ProcessTask, error) {
	if sessions == nil {
		return nil, ErrNilSessionPool
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if settings == nil || strings.TrimSpace(settings.Statement) == "" {
		return nil, ErrEmptyStatement
	}
	if taskType == TaskTypeProcess && len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if handler == nil {
		handler = DrainResults
	}

	id := uuid.New()
	return &ProcessTask{
		id:         id,
		taskType:   taskType,
		items:      items,
		settings:   settings,
		sessions:   sessions,
		handler:    handler,
		failureLog: failureLog,
		logger:     logger.With("task_id", id, "task_type", taskType),
		sleep:      sleepContext,
		status:     TaskStatusPending,
	}, nil
}

// ID returns the task's unique identifier
func (t *ProcessTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *ProcessTask) Type() string {
	return t.taskType
}

// Items returns the batch the task was created for
func (t *ProcessTask) Items() []string {
	return t.items
}

// Status returns the current task status
func (t *ProcessTask) Status() TaskStatus {
	return t.status
}

// Attempts returns the number of submissions made so far
func (t *ProcessTask) Attempts() int {
	return t.attempts
}

// Execute submits the batch, retrying retryable failures at a fixed interval
// until the retry limit is reached. Exhausted and non-retryable failures
// either abort the job (failOnError) or are written to the failure log and
// reported as Result.Failure. Connection failures always abort.
func (t *ProcessTask) Execute(ctx context.Context) (Result, error) {
	items := t.items
	defer t.cleanup()

	t.status = TaskStatusProcessing
	policy := t.settings.Retry

	for {
		t.attempts++
		err := t.invoke(ctx)
		if err == nil {
			t.retryCount = 0
			t.status = TaskStatusCompleted
			t.logger.Debug("task completed", "items", len(items), "attempts", t.attempts)
			return Result{Items: items}, nil
		}

		class := Classify(err, policy)
		if class == ClassFatalConnection {
			t.status = TaskStatusFailed
			t.logger.Error("remote connection failure",
				"items", itemsKey(items),
				"error", err)
			return Result{Items: items}, t.taskError(class, true, err)
		}

		if class == ClassRetryable && t.retryCount < policy.Limit {
			t.retryCount++
			t.logger.Warn("retryable remote failure, retrying",
				"retry", t.retryCount,
				"retry_limit", policy.Limit,
				"retry_interval", policy.Interval,
				"items", itemsKey(items),
				"error", err)
			if sleepErr := t.sleep(ctx, policy.Interval); sleepErr != nil {
				t.status = TaskStatusFailed
				return Result{Items: items}, t.taskError(class, true,
					fmt.Errorf("retry interrupted: %w", sleepErr))
			}
			continue
		}

		t.status = TaskStatusFailed
		if t.settings.FailOnError {
			t.logger.Error("task failed",
				"class", class.String(),
				"items", itemsKey(items),
				"error", err)
			return Result{Items: items}, t.taskError(class, true, err)
		}

		t.logger.Warn("failOnError is false, recording failed batch",
			"class", class.String(),
			"items", itemsKey(items),
			"error", err)
		if logErr := t.failureLog.Append(items, err.Error()); logErr != nil {
			t.logger.Error("failed to write failure log", "error", logErr)
		}
		return Result{Items: items, Failure: t.taskError(class, false, err)}, nil
	}
}

// invoke performs one attempt: build the request, check out a session,
// submit, and hand the result to the handler.
func (t *ProcessTask) invoke(ctx context.Context) error {
	req := t.buildRequest()

	session, err := t.sessions.Get(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			t.logger.Warn("failed to release session", "error", closeErr)
		}
	}()

	res, err := session.Submit(ctx, req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := res.Close(); closeErr != nil {
			t.logger.Warn("failed to close result", "error", closeErr)
		}
	}()

	return t.handler.HandleResult(ctx, t.items, res)
}

func (t *ProcessTask) buildRequest() *remote.Request {
	s := t.settings
	req := remote.NewRequest(s.Statement)
	req.Language = s.Language
	req.TimeZone = s.TimeZone

	if len(t.items) > 0 {
		if s.BindMode == remote.BindStructured {
			req.SetDocument(remote.VariableDoc, t.items)
		} else {
			delimiter := s.Delimiter
			if delimiter == "" {
				delimiter = DefaultBatchDelimiter
			}
			req.SetString(remote.VariableURI, strings.Join(t.items, delimiter))
		}
	}

	if s.BatchRef != "" {
		req.SetString(remote.VariableBatchRef, s.BatchRef)
	}

	for name, value := range s.Variables {
		req.SetString(name, value)
	}
	return req
}

func (t *ProcessTask) taskError(class ErrorClass, fatal bool, err error) *TaskError {
	return &TaskError{
		Items:    t.items,
		Class:    class,
		Attempts: t.attempts,
		Fatal:    fatal,
		Err:      err,
	}
}

// cleanup drops references to shared state so the task can be reclaimed
// while its Outcome is still in flight.
func (t *ProcessTask) cleanup() {
	t.settings = nil
	t.sessions = nil
	t.handler = nil
	t.failureLog = nil
}
