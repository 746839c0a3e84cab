package task

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the task package
var (
	ErrQueueClosed     = errors.New("task queue is closed")
	ErrQueueFull       = errors.New("task queue is full")
	ErrPoolShutdown    = errors.New("worker pool is shut down")
	ErrInvalidPoolSize = errors.New("worker pool size must be a positive integer")
	ErrTaskFailed      = errors.New("task failed")
	ErrTaskPanic       = errors.New("task panicked")
	ErrNilTask         = errors.New("task cannot be nil")

	ErrNilSessionPool = errors.New("session pool cannot be nil")
	ErrNilLogger      = errors.New("logger cannot be nil")
	ErrEmptyStatement = errors.New("statement cannot be empty")
	ErrEmptyBatch     = errors.New("batch cannot be empty")
)

// ErrorClass is the retry classification of a failed attempt
type ErrorClass int

const (
	// ClassNonRetryable failures are governed only by failOnError
	ClassNonRetryable ErrorClass = iota

	// ClassRetryable failures are retried up to the configured limit
	ClassRetryable

	// ClassFatalConnection failures abort immediately
	ClassFatalConnection
)

// String returns the class name used in logs
func (c ErrorClass) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassFatalConnection:
		return "fatal_connection"
	default:
		return "non_retryable"
	}
}

// TaskError describes a batch that failed after classification and retries
type TaskError struct {
	Items    []string
	Class    ErrorClass
	Attempts int

	// Fatal is true when the failure must abort the job
	Fatal bool

	Err error
}

// Error implements the error interface
func (e *TaskError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s) at items: %s: %v",
		ErrTaskFailed, e.Attempts, strings.Join(e.Items, ","), e.Err)
}

// Unwrap exposes both ErrTaskFailed and the underlying cause
func (e *TaskError) Unwrap() []error {
	return []error{ErrTaskFailed, e.Err}
}

// IsFatal reports whether err must abort the job. Errors that are not a
// TaskError, such as recovered panics, are always fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Fatal
	}
	return true
}
