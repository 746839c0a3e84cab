package task

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func outcomeOf(items []string, d time.Duration, failed bool) Outcome {
	out := Outcome{Items: items, Duration: d, Status: TaskStatusCompleted}
	if failed {
		out.Status = TaskStatusFailed
		out.Err = errors.New("failed")
	}
	return out
}

func TestStatsRecorder_SlowTasks(t *testing.T) {
	stats := newStatsRecorder(3, 10)

	durations := []time.Duration{5, 1, 9, 3, 7, 2}
	for i, d := range durations {
		stats.record(outcomeOf([]string{string(rune('a' + i))}, d*time.Millisecond, false))
	}

	snap := stats.snapshot()
	assert.Equal(t, int64(6), snap.Succeeded)
	assert.Equal(t, []SlowTask{
		{Items: "c", Duration: 9 * time.Millisecond},
		{Items: "e", Duration: 7 * time.Millisecond},
		{Items: "a", Duration: 5 * time.Millisecond},
	}, snap.SlowTasks)
}

func TestStatsRecorder_FailedItems(t *testing.T) {
	stats := newStatsRecorder(0, 3)

	stats.record(outcomeOf([]string{"b", "a"}, time.Millisecond, true))
	stats.record(outcomeOf([]string{"a"}, time.Millisecond, true))
	snap := stats.snapshot()
	assert.Equal(t, int64(2), snap.Failed)
	assert.Equal(t, []string{"a", "b"}, snap.FailedItems)
	assert.False(t, snap.FailedItemsTruncated)
	assert.Empty(t, snap.SlowTasks)

	stats.record(outcomeOf([]string{"c", "d", "e"}, time.Millisecond, true))
	snap = stats.snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, snap.FailedItems)
	assert.True(t, snap.FailedItemsTruncated)
}

func TestStatsRecorder_SnapshotIsIndependent(t *testing.T) {
	stats := newStatsRecorder(2, 2)
	stats.record(outcomeOf([]string{"a", "b"}, time.Second, false))

	snap := stats.snapshot()
	snap.SlowTasks[0].Items = "changed"

	assert.Equal(t, "a,b", stats.snapshot().SlowTasks[0].Items)
}

func TestNewOutcome(t *testing.T) {
	task := NewMockTask("a", "b")

	out := newOutcome(task, 3, Result{Items: []string{"a", "b"}}, nil, time.Second)
	assert.True(t, out.Succeeded())
	assert.Equal(t, task.ID(), out.TaskID)
	assert.Equal(t, "mock", out.Type)
	assert.Equal(t, 3, out.WorkerID)
	assert.Equal(t, time.Second, out.Duration)

	recorded := errors.New("recorded")
	out = newOutcome(task, 1, Result{Failure: recorded}, nil, 0)
	assert.False(t, out.Succeeded())
	assert.False(t, out.Fatal)
	assert.Equal(t, []string{"a", "b"}, out.Items)
	assert.ErrorIs(t, out.Err, recorded)

	fatal := errors.New("fatal")
	out = newOutcome(task, 1, Result{}, fatal, 0)
	assert.Equal(t, TaskStatusFailed, out.Status)
	assert.True(t, out.Fatal)
	assert.ErrorIs(t, out.Err, fatal)
}
