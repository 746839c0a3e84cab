package job

import (
	"context"
	"log/slog"
)

// DefaultProgressInterval is the number of completed tasks between progress logs
const DefaultProgressInterval = 100

// Monitor drains the pool's completion channel and updates the job
// counters. The first fatal outcome shuts the pool down immediately.
type Monitor struct {
	pool             Pool
	counters         *Counters
	progressInterval int
	progress         func() Stats
	logger           *slog.Logger

	fatal error
}

// NewMonitor creates a Monitor. progress, when set, supplies the stats
// logged every progressInterval completed tasks.
func NewMonitor(
	pool Pool,
	counters *Counters,
	progressInterval int,
	progress func() Stats,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		pool:             pool,
		counters:         counters,
		progressInterval: progressInterval,
		progress:         progress,
		logger:           logger.With("component", "monitor"),
	}
}

// Run consumes outcomes until the pool terminates and closes its completion
// channel. It returns the first fatal task error, if any, after every
// outcome has been accounted for.
func (m *Monitor) Run(ctx context.Context) error {
	for out := range m.pool.Completions() {
		m.counters.AddOutcome(out)

		if out.Fatal && m.fatal == nil {
			m.fatal = out.Err
			abandoned := m.pool.ShutdownNow()
			m.counters.AddAbandoned(abandoned)
			m.logger.Error("fatal task error, shutting down",
				"task_id", out.TaskID,
				"items", len(out.Items),
				"abandoned_tasks", len(abandoned),
				"error", out.Err)
		}

		m.logProgress()
	}

	snap := m.counters.Snapshot()
	if m.fatal == nil && snap.Completed()+snap.Abandoned != snap.Submitted {
		m.logger.Warn("completed item count does not match submitted items",
			"submitted", snap.Submitted,
			"completed", snap.Completed(),
			"abandoned", snap.Abandoned)
	}
	m.logger.Info("all tasks accounted for",
		"succeeded", snap.Succeeded,
		"failed", snap.Failed,
		"abandoned", snap.Abandoned)

	return m.fatal
}

func (m *Monitor) logProgress() {
	if m.progress == nil || m.progressInterval <= 0 {
		return
	}
	completed := m.counters.Snapshot().TasksCompleted
	if completed%int64(m.progressInterval) != 0 {
		return
	}

	stats := m.progress()
	m.logger.Info("job progress",
		"completed", stats.Counters.Completed(),
		"expected", stats.Counters.Expected,
		"failed", stats.Counters.Failed,
		"items_per_second", stats.ItemsPerSecond,
		"eta", stats.ETA,
		"pool_size", stats.PoolSize,
		"paused", stats.Paused)
}
