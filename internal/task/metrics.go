package task

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a WorkerPool
type Metrics struct {
	TasksSubmitted prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksFailed    prometheus.Counter
	TasksAbandoned prometheus.Counter
	ActiveWorkers  prometheus.Gauge
	QueuedTasks    prometheus.Gauge
	PoolSize       prometheus.Gauge
	TaskLatency    prometheus.Histogram
}

// NewMetrics creates the pool collectors and registers them on reg. A nil
// registerer leaves them unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	const subsystem = "pool"
	m := &Metrics{
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted to the pool",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks completed successfully",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks that failed",
		}),
		TasksAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_abandoned_total",
			Help:      "Total number of queued tasks returned unstarted by an immediate shutdown",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_workers",
			Help:      "Current number of workers executing a task",
		}),
		QueuedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queued_tasks",
			Help:      "Current number of tasks waiting for a worker",
		}),
		PoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "size",
			Help:      "Configured number of workers",
		}),
		TaskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "task_latency_seconds",
			Help:      "Histogram of task execution latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.TasksSubmitted,
		m.TasksCompleted,
		m.TasksFailed,
		m.TasksAbandoned,
		m.ActiveWorkers,
		m.QueuedTasks,
		m.PoolSize,
		m.TaskLatency,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// The helpers below are nil-safe so the pool can run without metrics.

func (m *Metrics) submitted(queued int) {
	if m == nil {
		return
	}
	m.TasksSubmitted.Inc()
	m.QueuedTasks.Set(float64(queued))
}

func (m *Metrics) started(queued, active int) {
	if m == nil {
		return
	}
	m.QueuedTasks.Set(float64(queued))
	m.ActiveWorkers.Set(float64(active))
}

func (m *Metrics) finished(out Outcome) {
	if m == nil {
		return
	}
	m.TaskLatency.Observe(out.Duration.Seconds())
	if out.Succeeded() {
		m.TasksCompleted.Inc()
	} else {
		m.TasksFailed.Inc()
	}
}

func (m *Metrics) active(n int) {
	if m == nil {
		return
	}
	m.ActiveWorkers.Set(float64(n))
}

func (m *Metrics) abandoned(n int) {
	if m == nil {
		return
	}
	m.TasksAbandoned.Add(float64(n))
	m.QueuedTasks.Set(0)
}

func (m *Metrics) resized(n int) {
	if m == nil {
		return
	}
	m.PoolSize.Set(float64(n))
}
