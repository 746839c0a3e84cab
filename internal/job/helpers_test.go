package job

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/batchrun/internal/task"
)

func setupTestLogger() *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sliceSource is an in-memory WorkItemSource
type sliceSource struct {
	items    []string
	total    int
	pos      int
	openErr  error
	nextErr  error
	failAt   int
	batchRef string

	mu     sync.Mutex
	opened bool
	closed bool
}

func newSliceSource(items ...string) *sliceSource {
	return &sliceSource{items: items, total: len(items), failAt: -1}
}

func (s *sliceSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return s.openErr
}

func (s *sliceSource) HasNext() bool {
	return s.pos < len(s.items)
}

func (s *sliceSource) Next() (string, error) {
	if s.pos == s.failAt {
		return "", s.nextErr
	}
	item := s.items[s.pos]
	s.pos++
	return item, nil
}

func (s *sliceSource) TotalCount() int {
	return s.total
}

func (s *sliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *sliceSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// refSource adds a batch reference to sliceSource
type refSource struct {
	*sliceSource
}

func (s refSource) BatchRef() string {
	return s.batchRef
}

// mockFactory creates MockTasks that succeed
type mockFactory struct {
	err error
}

func (f mockFactory) CreateTask(items []string) (task.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	return task.NewMockTask(items...), nil
}

// drainOutcomes collects every outcome until the pool terminates
func drainOutcomes(pool Pool) <-chan []task.Outcome {
	done := make(chan []task.Outcome, 1)
	go func() {
		var outcomes []task.Outcome
		for out := range pool.Completions() {
			outcomes = append(outcomes, out)
		}
		done <- outcomes
	}()
	return done
}

func waitOutcomes(t *testing.T, done <-chan []task.Outcome) []task.Outcome {
	t.Helper()
	select {
	case outcomes := <-done:
		return outcomes
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the pool to terminate")
		return nil
	}
}

// fakePool records the control calls made on it
type fakePool struct {
	mu          sync.Mutex
	state       task.PoolState
	paused      int
	resumed     int
	sizes       []int
	shutdowns   int
	completions chan task.Outcome
}

func newFakePool() *fakePool {
	return &fakePool{completions: make(chan task.Outcome)}
}

func (p *fakePool) Submit(ctx context.Context, t task.Task) error { return nil }
func (p *fakePool) Shutdown()                                     {}

func (p *fakePool) ShutdownNow() []task.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdowns++
	return nil
}

func (p *fakePool) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused++
}

func (p *fakePool) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumed++
}

func (p *fakePool) SetSize(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sizes = append(p.sizes, n)
	return nil
}

func (p *fakePool) State() task.PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePool) Completions() <-chan task.Outcome {
	return p.completions
}

func (p *fakePool) setState(s task.PoolState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func (p *fakePool) calls() (paused, resumed int, sizes []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused, p.resumed, append([]int(nil), p.sizes...)
}
