package task

import (
	"log/slog"
	"strings"

	"github.com/phrazzld/batchrun/internal/remote"
)

// ProcessTaskFactory creates ProcessTask instances that share one Settings,
// session pool, result handler and failure log.
type ProcessTaskFactory struct {
	settings   *Settings
	sessions   remote.SessionPool
	handler    ResultHandler
	failureLog *FailureLog
	logger     *slog.Logger
}

// NewProcessTaskFactory creates a new factory for ProcessTasks
func NewProcessTaskFactory(
	settings Settings,
	sessions remote.SessionPool,
	handler ResultHandler,
	failureLog *FailureLog,
	logger *slog.Logger,
) (*ProcessTaskFactory, error) {
	if sessions == nil {
		return nil, ErrNilSessionPool
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if strings.TrimSpace(settings.Statement) == "" {
		return nil, ErrEmptyStatement
	}
	if handler == nil {
		handler = DrainResults
	}

	return &ProcessTaskFactory{
		settings:   &settings,
		sessions:   sessions,
		handler:    handler,
		failureLog: failureLog,
		logger:     logger.With("component", "process_task_factory"),
	}, nil
}

// Settings returns a copy of the shared task settings
func (f *ProcessTaskFactory) Settings() Settings {
	return *f.settings
}

// CreateTask creates a ProcessTask for one batch of work items
func (f *ProcessTaskFactory) CreateTask(items []string) (Task, error) {
	task, err := NewProcessTask(
		TaskTypeProcess,
		items,
		f.settings,
		f.sessions,
		f.handler,
		f.failureLog,
		f.logger,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// CreateStatementTask creates an item-less task running its own statement,
// used for the init, pre-batch and post-batch hooks. It shares the factory's
// retry and failure settings.
func (f *ProcessTaskFactory) CreateStatementTask(taskType, statement string) (Task, error) {
	settings := *f.settings
	settings.Statement = statement
	task, err := NewProcessTask(
		taskType,
		nil,
		&settings,
		f.sessions,
		f.handler,
		f.failureLog,
		f.logger,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}
