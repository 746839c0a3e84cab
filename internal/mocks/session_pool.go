package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/batchrun/internal/remote"
)

// MockSessionPool implements remote.SessionPool for testing. Every Get hands
// out a MockSession whose Submit delegates to the pool's SubmitFn, so tests
// script the remote endpoint per attempt in one place.
type MockSessionPool struct {
	// Custom behavior functions
	GetFn    func(ctx context.Context) (remote.Session, error)
	SubmitFn func(ctx context.Context, req *remote.Request) (remote.Result, error)

	// Default response values
	Rows [][]any
	Err  error

	// Call tracking for verification
	GetCalls struct {
		mu    sync.Mutex
		Count int
	}

	SubmitCalls struct {
		mu       sync.Mutex
		Count    int
		Requests []*remote.Request
	}

	CloseCalls struct {
		mu    sync.Mutex
		Count int
	}
}

// Get implements the remote.SessionPool interface
func (m *MockSessionPool) Get(ctx context.Context) (remote.Session, error) {
	m.GetCalls.mu.Lock()
	m.GetCalls.Count++
	m.GetCalls.mu.Unlock()

	// Use custom function if provided
	if m.GetFn != nil {
		return m.GetFn(ctx)
	}
	return &MockSession{pool: m}, nil
}

// Gets returns the number of sessions checked out
func (m *MockSessionPool) Gets() int {
	m.GetCalls.mu.Lock()
	defer m.GetCalls.mu.Unlock()
	return m.GetCalls.Count
}

// Submits returns the number of requests submitted
func (m *MockSessionPool) Submits() int {
	m.SubmitCalls.mu.Lock()
	defer m.SubmitCalls.mu.Unlock()
	return m.SubmitCalls.Count
}

// Requests returns a copy of every submitted request
func (m *MockSessionPool) Requests() []*remote.Request {
	m.SubmitCalls.mu.Lock()
	defer m.SubmitCalls.mu.Unlock()
	return append([]*remote.Request(nil), m.SubmitCalls.Requests...)
}

// Closes returns the number of sessions released
func (m *MockSessionPool) Closes() int {
	m.CloseCalls.mu.Lock()
	defer m.CloseCalls.mu.Unlock()
	return m.CloseCalls.Count
}

// Reset clears all call tracking data
func (m *MockSessionPool) Reset() {
	m.GetCalls.mu.Lock()
	m.GetCalls.Count = 0
	m.GetCalls.mu.Unlock()

	m.SubmitCalls.mu.Lock()
	m.SubmitCalls.Count = 0
	m.SubmitCalls.Requests = nil
	m.SubmitCalls.mu.Unlock()

	m.CloseCalls.mu.Lock()
	m.CloseCalls.Count = 0
	m.CloseCalls.mu.Unlock()
}

// MockSession is the session handed out by MockSessionPool
type MockSession struct {
	pool   *MockSessionPool
	closed bool
}

// Submit implements the remote.Session interface
func (s *MockSession) Submit(ctx context.Context, req *remote.Request) (remote.Result, error) {
	m := s.pool
	m.SubmitCalls.mu.Lock()
	m.SubmitCalls.Count++
	m.SubmitCalls.Requests = append(m.SubmitCalls.Requests, req)
	m.SubmitCalls.mu.Unlock()

	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return NewMockResult(m.Rows...), nil
}

// Close implements the remote.Session interface
func (s *MockSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pool.CloseCalls.mu.Lock()
	s.pool.CloseCalls.Count++
	s.pool.CloseCalls.mu.Unlock()
	return nil
}

// MockResult implements remote.Result over fixed rows
type MockResult struct {
	rows    [][]any
	pos     int
	IterErr error
	Closed  bool
}

// NewMockResult creates a result yielding the given rows
func NewMockResult(rows ...[]any) *MockResult {
	return &MockResult{rows: rows, pos: -1}
}

// Next implements the remote.Result interface
func (r *MockResult) Next() bool {
	if r.pos+1 >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

// Values implements the remote.Result interface
func (r *MockResult) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return nil, nil
	}
	return r.rows[r.pos], nil
}

// Err implements the remote.Result interface
func (r *MockResult) Err() error {
	return r.IterErr
}

// Close implements the remote.Result interface
func (r *MockResult) Close() error {
	r.Closed = true
	return nil
}

// MockOption is a function type that configures a MockSessionPool
type MockOption func(*MockSessionPool)

// WithRows sets the rows returned by every successful submission
func WithRows(rows ...[]any) MockOption {
	return func(m *MockSessionPool) {
		m.Rows = rows
	}
}

// WithError sets the error returned by every submission
func WithError(err error) MockOption {
	return func(m *MockSessionPool) {
		m.Err = err
	}
}

// WithSubmitFn sets a custom function for Submit
func WithSubmitFn(fn func(ctx context.Context, req *remote.Request) (remote.Result, error)) MockOption {
	return func(m *MockSessionPool) {
		m.SubmitFn = fn
	}
}

// WithGetFn sets a custom function for Get
func WithGetFn(fn func(ctx context.Context) (remote.Session, error)) MockOption {
	return func(m *MockSessionPool) {
		m.GetFn = fn
	}
}

// NewMockSessionPool creates a new MockSessionPool with the given options
func NewMockSessionPool(opts ...MockOption) *MockSessionPool {
	m := &MockSessionPool{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewFailingSessionPool creates a pool whose submissions fail with errs in
// order, then succeed once errs is exhausted
func NewFailingSessionPool(errs ...error) *MockSessionPool {
	var (
		mu      sync.Mutex
		pending = append([]error(nil), errs...)
	)
	return NewMockSessionPool(WithSubmitFn(func(ctx context.Context, req *remote.Request) (remote.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(pending) == 0 {
			return NewMockResult(), nil
		}
		err := pending[0]
		pending = pending[1:]
		return nil, err
	}))
}
