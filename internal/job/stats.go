package job

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/batchrun/internal/task"
)

// Stats is a point-in-time view of a running or finished job
type Stats struct {
	JobID     uuid.UUID
	StartedAt time.Time
	Elapsed   time.Duration
	Counters  CountersSnapshot

	// ItemsPerSecond is the average completion rate since the job started
	ItemsPerSecond float64

	// ETA estimates the time left for the remaining expected items; zero
	// when unknown
	ETA time.Duration

	Paused     bool
	PoolState  task.PoolState
	PoolSize   int
	Active     int
	QueueLen   int
	TaskTiming task.PoolStats
}

// computeRates fills ItemsPerSecond and ETA from the counters and elapsed time
func (s *Stats) computeRates() {
	completed := s.Counters.Completed()
	if completed == 0 || s.Elapsed <= 0 {
		return
	}
	s.ItemsPerSecond = float64(completed) / s.Elapsed.Seconds()

	remaining := s.Counters.Expected - completed
	if remaining > 0 {
		s.ETA = time.Duration(float64(remaining) / s.ItemsPerSecond * float64(time.Second))
	}
}
