package task

import (
	"fmt"
	"log/slog"
)

// TaskQueue is the bounded FIFO of tasks waiting for a worker. It is a ring
// buffer with no locking of its own; the WorkerPool guards it with its mutex.
type TaskQueue struct {
	tasks  []Task
	head   int
	size   int
	logger *slog.Logger
	closed bool
}

// NewTaskQueue creates a new task queue with the specified capacity
func NewTaskQueue(capacity int, logger *slog.Logger) *TaskQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &TaskQueue{
		tasks:  make([]Task, capacity),
		logger: logger,
	}
}

// Enqueue appends a task to the tail of the queue.
// Returns an error if the queue is full or closed.
func (q *TaskQueue) Enqueue(task Task) error {
	if q.closed {
		return ErrQueueClosed
	}
	if q.Full() {
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, len(q.tasks))
	}

	q.tasks[(q.head+q.size)%len(q.tasks)] = task
	q.size++
	q.logger.Debug("task enqueued",
		"task_id", task.ID(),
		"task_type", task.Type(),
		"queue_len", q.size,
		"queue_cap", len(q.tasks))
	return nil
}

// Dequeue removes and returns the task at the head of the queue
func (q *TaskQueue) Dequeue() (Task, bool) {
	if q.size == 0 {
		return nil, false
	}
	task := q.tasks[q.head]
	q.tasks[q.head] = nil
	q.head = (q.head + 1) % len(q.tasks)
	q.size--
	return task, true
}

// DrainAll removes every queued task and returns them in FIFO order
func (q *TaskQueue) DrainAll() []Task {
	drained := make([]Task, 0, q.size)
	for {
		task, ok := q.Dequeue()
		if !ok {
			return drained
		}
		drained = append(drained, task)
	}
}

// Len returns the number of queued tasks
func (q *TaskQueue) Len() int {
	return q.size
}

// Cap returns the queue capacity
func (q *TaskQueue) Cap() int {
	return len(q.tasks)
}

// Full reports whether an Enqueue would be rejected for lack of space
func (q *TaskQueue) Full() bool {
	return q.size == len(q.tasks)
}

// Closed reports whether the queue has been closed
func (q *TaskQueue) Closed() bool {
	return q.closed
}

// Close rejects further Enqueue calls. Queued tasks can still be dequeued.
func (q *TaskQueue) Close() {
	if !q.closed {
		q.closed = true
		q.logger.Info("task queue closed", "queue_len", q.size)
	}
}
