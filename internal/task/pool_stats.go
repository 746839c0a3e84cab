package task

import (
	"cmp"
	"container/heap"
	"slices"
	"sync"
	"time"
)

// Stats defaults
const (
	DefaultSlowTaskLimit   = 5
	DefaultFailedItemLimit = 1000
)

// SlowTask is one entry of the slowest-task ranking
type SlowTask struct {
	Items    string
	Duration time.Duration
}

// PoolStats is a point-in-time snapshot of a WorkerPool's rolling statistics
type PoolStats struct {
	Succeeded int64
	Failed    int64

	// SlowTasks lists the slowest tasks seen so far, slowest first
	SlowTasks []SlowTask

	// FailedItems lists the distinct failed work items, sorted
	FailedItems []string

	// FailedItemsTruncated is true when failures beyond the limit were not kept
	FailedItemsTruncated bool
}

// slowHeap is a min-heap on duration so the fastest kept entry is evicted first
type slowHeap []SlowTask

func (h slowHeap) Len() int           { return len(h) }
func (h slowHeap) Less(i, j int) bool { return h[i].Duration < h[j].Duration }
func (h slowHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *slowHeap) Push(x any)        { *h = append(*h, x.(SlowTask)) }
func (h *slowHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// statsRecorder accumulates observational statistics from task outcomes.
// It never affects task execution.
type statsRecorder struct {
	mu          sync.Mutex
	slowLimit   int
	failedLimit int

	succeeded   int64
	failed      int64
	slow        slowHeap
	failedItems map[string]struct{}
	truncated   bool
}

func newStatsRecorder(slowLimit, failedLimit int) *statsRecorder {
	if slowLimit < 0 {
		slowLimit = 0
	}
	if failedLimit < 0 {
		failedLimit = 0
	}
	return &statsRecorder{
		slowLimit:   slowLimit,
		failedLimit: failedLimit,
		failedItems: make(map[string]struct{}),
	}
}

func (s *statsRecorder) record(out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if out.Succeeded() {
		s.succeeded++
	} else {
		s.failed++
		for _, item := range out.Items {
			if _, ok := s.failedItems[item]; ok {
				continue
			}
			if len(s.failedItems) >= s.failedLimit {
				s.truncated = true
				break
			}
			s.failedItems[item] = struct{}{}
		}
	}

	if s.slowLimit == 0 || len(out.Items) == 0 {
		return
	}
	entry := SlowTask{Items: itemsKey(out.Items), Duration: out.Duration}
	if s.slow.Len() < s.slowLimit {
		heap.Push(&s.slow, entry)
		return
	}
	if entry.Duration > s.slow[0].Duration {
		s.slow[0] = entry
		heap.Fix(&s.slow, 0)
	}
}

func (s *statsRecorder) snapshot() PoolStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	slow := slices.Clone(s.slow)
	slices.SortFunc(slow, func(a, b SlowTask) int {
		return cmp.Compare(b.Duration, a.Duration)
	})

	failed := make([]string, 0, len(s.failedItems))
	for item := range s.failedItems {
		failed = append(failed, item)
	}
	slices.Sort(failed)

	return PoolStats{
		Succeeded:            s.succeeded,
		Failed:               s.failed,
		SlowTasks:            slow,
		FailedItems:          failed,
		FailedItemsTruncated: s.truncated,
	}
}
