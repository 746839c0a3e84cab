package task

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MockTask is a simple implementation of the Task interface for testing
type MockTask struct {
	TaskID    uuid.UUID
	TaskType  string
	TaskItems []string
	ExecuteFn func(ctx context.Context) (Result, error)
}

// NewMockTask creates a new MockTask for the given items that succeeds
func NewMockTask(items ...string) *MockTask {
	t := &MockTask{
		TaskID:    uuid.New(),
		TaskType:  "mock",
		TaskItems: items,
	}
	t.ExecuteFn = func(ctx context.Context) (Result, error) {
		return Result{Items: t.TaskItems}, nil
	}
	return t
}

// ID returns the task's unique identifier
func (t *MockTask) ID() uuid.UUID {
	return t.TaskID
}

// Type returns the task type identifier
func (t *MockTask) Type() string {
	return t.TaskType
}

// Items returns the task's work items
func (t *MockTask) Items() []string {
	return t.TaskItems
}

// Execute runs the task logic
func (t *MockTask) Execute(ctx context.Context) (Result, error) {
	return t.ExecuteFn(ctx)
}

// CreateMockTaskBatch is a helper that creates n single-item mock tasks named
// with the given prefix
func CreateMockTaskBatch(prefix string, n int) []*MockTask {
	tasks := make([]*MockTask, n)
	for i := range tasks {
		tasks[i] = NewMockTask(fmt.Sprintf("%s-%d", prefix, i))
	}
	return tasks
}
