package job

import (
	"sync/atomic"

	"github.com/phrazzld/batchrun/internal/task"
)

// Counters tracks job progress. Items are counted individually; tasks are
// counted per batch.
type Counters struct {
	expected       atomic.Int64
	submitted      atomic.Int64
	succeeded      atomic.Int64
	failed         atomic.Int64
	abandoned      atomic.Int64
	tasksSubmitted atomic.Int64
	tasksCompleted atomic.Int64
}

// CountersSnapshot is a point-in-time copy of Counters
type CountersSnapshot struct {
	Expected       int64
	Submitted      int64
	Succeeded      int64
	Failed         int64
	Abandoned      int64
	TasksSubmitted int64
	TasksCompleted int64
}

// Completed returns the number of items whose task finished
func (s CountersSnapshot) Completed() int64 {
	return s.Succeeded + s.Failed
}

// SetExpected sets the total number of items the job expects to process
func (c *Counters) SetExpected(n int64) {
	c.expected.Store(n)
}

// Expected returns the total number of items the job expects to process
func (c *Counters) Expected() int64 {
	return c.expected.Load()
}

// AddSubmitted records one submitted batch of n items
func (c *Counters) AddSubmitted(n int) {
	c.submitted.Add(int64(n))
	c.tasksSubmitted.Add(1)
}

// AddOutcome records a finished task
func (c *Counters) AddOutcome(out task.Outcome) {
	n := int64(len(out.Items))
	if out.Succeeded() {
		c.succeeded.Add(n)
	} else {
		c.failed.Add(n)
	}
	c.tasksCompleted.Add(1)
}

// AddAbandoned records tasks that were submitted but never started
func (c *Counters) AddAbandoned(tasks []task.Task) {
	var n int64
	for _, t := range tasks {
		n += int64(len(t.Items()))
	}
	c.abandoned.Add(n)
}

// Snapshot returns the current counter values
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		Expected:       c.expected.Load(),
		Submitted:      c.submitted.Load(),
		Succeeded:      c.succeeded.Load(),
		Failed:         c.failed.Load(),
		Abandoned:      c.abandoned.Load(),
		TasksSubmitted: c.tasksSubmitted.Load(),
		TasksCompleted: c.tasksCompleted.Load(),
	}
}
