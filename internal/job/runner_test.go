package job

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/batchrun/internal/mocks"
	"github.com/phrazzld/batchrun/internal/remote"
	"github.com/phrazzld/batchrun/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStatement = "UPDATE items SET seen = true WHERE id = ANY(@URI)"

func testConfig() Config {
	return Config{
		BatchSize:   3,
		ThreadCount: 2,
		Task: task.Settings{
			Statement: testStatement,
			BindMode:  remote.BindString,
		},
	}
}

func numberedItems(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = "item-" + string(rune('a'+i))
	}
	return items
}

func runJob(t *testing.T, runner *Runner, ctx context.Context) Result {
	t.Helper()
	done := make(chan Result, 1)
	go func() { done <- runner.Run(ctx) }()
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for job to finish")
		return Result{}
	}
}

func statements(reqs []*remote.Request) []string {
	var out []string
	for _, req := range reqs {
		out = append(out, req.Statement)
	}
	return out
}

func TestNewRunner_Validation(t *testing.T) {
	sessions := mocks.NewMockSessionPool()
	source := newSliceSource("a")

	tests := []struct {
		name    string
		config  Config
		deps    Dependencies
		nilLog  bool
		wantErr error
	}{
		{
			name:    "nil source",
			config:  testConfig(),
			deps:    Dependencies{Sessions: sessions},
			wantErr: ErrNilSource,
		},
		{
			name:    "nil session pool",
			config:  testConfig(),
			deps:    Dependencies{Source: source},
			wantErr: task.ErrNilSessionPool,
		},
		{
			name:    "nil logger",
			config:  testConfig(),
			deps:    Dependencies{Source: source, Sessions: sessions},
			nilLog:  true,
			wantErr: task.ErrNilLogger,
		},
		{
			name:    "blank statement",
			config:  Config{Task: task.Settings{Statement: "  "}},
			deps:    Dependencies{Source: source, Sessions: sessions},
			wantErr: task.ErrEmptyStatement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := setupTestLogger()
			if tt.nilLog {
				logger = nil
			}
			runner, err := NewRunner(tt.config, tt.deps, logger)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, runner)
		})
	}
}

func TestRunner_ProcessesEveryItem(t *testing.T) {
	items := numberedItems(10)
	source := newSliceSource(items...)
	sessions := mocks.NewMockSessionPool()

	runner, err := NewRunner(testConfig(), Dependencies{Source: source, Sessions: sessions}, setupTestLogger())
	require.NoError(t, err)

	res := runJob(t, runner, context.Background())

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.NoError(t, res.Err)
	assert.Equal(t, int64(10), res.Processed)
	assert.Equal(t, int64(10), res.Stats.Counters.Succeeded)
	assert.Equal(t, int64(4), res.Stats.Counters.TasksCompleted)
	assert.Equal(t, task.StateTerminated, res.Stats.PoolState)
	assert.Equal(t, runner.ID(), res.Stats.JobID)
	assert.True(t, source.isClosed())

	var bound []string
	for _, req := range sessions.Requests() {
		uri, ok := req.Variables[remote.VariableURI].(string)
		require.True(t, ok)
		bound = append(bound, strings.Split(uri, task.DefaultBatchDelimiter)...)
	}
	assert.ElementsMatch(t, items, bound)
	assert.Equal(t, sessions.Gets(), sessions.Closes())
}

func TestRunner_NoWork(t *testing.T) {
	sessions := mocks.NewMockSessionPool()
	source := newSliceSource()

	config := testConfig()
	config.PreBatchStatement = "SELECT 'pre'"
	runner, err := NewRunner(config, Dependencies{Source: source, Sessions: sessions}, setupTestLogger())
	require.NoError(t, err)

	res := runJob(t, runner, context.Background())

	assert.Equal(t, StatusNoWork, res.Status)
	assert.Zero(t, res.Processed)
	assert.Zero(t, sessions.Submits())
	assert.True(t, source.isClosed())
}

func TestRunner_OnlyBlankItems(t *testing.T) {
	sessions := mocks.NewMockSessionPool()
	source := newSliceSource("", " ", "\t")

	config := testConfig()
	config.PostBatchStatement = "SELECT 'post'"
	runner, err := NewRunner(config, Dependencies{Source: source, Sessions: sessions}, setupTestLogger())
	require.NoError(t, err)

	res := runJob(t, runner, context.Background())

	assert.Equal(t, StatusNoWork, res.Status)
	assert.Zero(t, sessions.Submits())
}

func TestRunner_RecordedFailuresStillSucceed(t *testing.T) {
	source := newSliceSource("good-1", "bad", "good-2")
	sessions := mocks.NewMockSessionPool(mocks.WithSubmitFn(
		func(ctx context.Context, req *remote.Request) (remote.Result, error) {
			if req.Variables[remote.VariableURI] == "bad" {
				return nil, &remote.Error{Kind: remote.KindQuery, Code: "22P02", Message: "invalid input"}
			}
			return mocks.NewMockResult(), nil
		},
	))
	failureLog := task.NewFailureLog(t.TempDir(), "failed.txt", "", setupTestLogger())

	config := testConfig()
	config.BatchSize = 1
	runner, err := NewRunner(config, Dependencies{
		Source:     source,
		Sessions:   sessions,
		FailureLog: failureLog,
	}, setupTestLogger())
	require.NoError(t, err)

	res := runJob(t, runner, context.Background())

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, int64(3), res.Processed)
	assert.Equal(t, int64(2), res.Stats.Counters.Succeeded)
	assert.Equal(t, int64(1), res.Stats.Counters.Failed)
	assert.Equal(t, []string{"bad"}, res.Stats.TaskTiming.FailedItems)
	assert.FileExists(t, failureLog.Path())
}

func TestRunner_FatalErrorFailsJob(t *testing.T) {
	connErr := &remote.Error{Kind: remote.KindConnection, Message: "connection refused"}
	sessions := mocks.NewMockSessionPool(mocks.WithSubmitFn(
		func(ctx context.Context, req *remote.Request) (remote.Result, error) {
			if req.Statement == testStatement {
				return nil, connErr
			}
			return mocks.NewMockResult(), nil
		},
	))

	config := testConfig()
	config.BatchSize = 1
	config.ThreadCount = 1
	config.PostBatchStatement = "SELECT 'post'"
	runner, err := NewRunner(config, Dependencies{
		Source:   newSliceSource(numberedItems(6)...),
		Sessions: sessions,
	}, setupTestLogger())
	require.NoError(t, err)

	res := runJob(t, runner, context.Background())

	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, remote.IsConnectionError(res.Err))
	assert.ErrorIs(t, res.Err, task.ErrTaskFailed)
	assert.NotContains(t, statements(sessions.Requests()), "SELECT 'post'")

	snap := res.Stats.Counters
	assert.Equal(t, snap.Submitted, snap.Completed()+snap.Abandoned)
}

func TestRunner_FailOnErrorFailsJob(t *testing.T) {
	sessions := mocks.NewMockSessionPool(mocks.WithError(
		&remote.Error{Kind: remote.KindQuery, Code: "42703", Message: "column does not exist"},
	))

	config := testConfig()
	config.Task.FailOnError = true
	runner, err := NewRunner(config, Dependencies{
		Source:   newSliceSource("a", "b"),
		Sessions: sessions,
	}, setupTestLogger())
	require.NoError(t, err)

	res := runJob(t, runner, context.Background())

	assert.Equal(t, StatusFailed, res.Status)
	var taskErr *task.TaskError
	require.ErrorAs(t, res.Err, &taskErr)
	assert.Equal(t, []string{"a", "b"}, taskErr.Items)
}

func TestRunner_StatementOrder(t *testing.T) {
	sessions := mocks.NewMockSessionPool()

	config := testConfig()
	config.BatchSize = 2
	config.ThreadCount = 1
	config.InitStatement = "SELECT 'init'"
	config.PreBatchStatement = "SELECT 'pre'"
	config.PostBatchStatement = "SELECT 'post'"
	runner, err := NewRunner(config, Dependencies{
		Source:   newSliceSource("a", "b", "c"),
		Sessions: sessions,
	}, setupTestLogger())
	require.NoError(t, err)

	res := runJob(t, runner, context.Background())
	require.Equal(t, StatusSucceeded, res.Status)

	assert.Equal(t, []string{
		"SELECT 'init'",
		"SELECT 'pre'",
		testStatement,
		testStatement,
		"SELECT 'post'",
	}, statements(sessions.Requests()))

	// statement tasks bind no items
	hook := sessions.Requests()[0]
	assert.NotContains(t, hook.Variables, remote.VariableURI)
}

func TestRunner_InitFailureSkipsSource(t *testing.T) {
	sessions := mocks.NewMockSessionPool(mocks.WithError(
		&remote.Error{Kind: remote.KindConnection, Message: "no route to host"},
	))
	source := newSliceSource("a")

	config := testConfig()
	config.InitStatement = "SELECT 'init'"
	runner, err := NewRunner(config, Dependencies{Source: source, Sessions: sessions}, setupTestLogger())
	require.NoError(t, err)

	res := runJob(t, runner, context.Background())

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorContains(t, res.Err, "init task failed")
	source.mu.Lock()
	defer source.mu.Unlock()
	assert.False(t, source.opened)
}

func TestRunner_SourceOpenError(t *testing.T) {
	source := newSliceSource("a")
	source.openErr = errors.New("permission denied")

	runner, err := NewRunner(testConfig(), Dependencies{
		Source:   source,
		Sessions: mocks.NewMockSessionPool(),
	}, setupTestLogger())
	require.NoError(t, err)

	res := runJob(t, runner, context.Background())
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, source.openErr)
}

func TestRunner_BatchRefFromSource(t *testing.T) {
	source := refSource{newSliceSource("a", "b")}
	source.batchRef = "/data/items.txt"
	sessions := mocks.NewMockSessionPool()

	config := testConfig()
	config.PreBatchStatement = "SELECT 'pre'"
	runner, err := NewRunner(config, Dependencies{Source: source, Sessions: sessions}, setupTestLogger())
	require.NoError(t, err)

	res := runJob(t, runner, context.Background())
	require.Equal(t, StatusSucceeded, res.Status)

	for _, req := range sessions.Requests() {
		assert.Equal(t, "/data/items.txt", req.Variables[remote.VariableBatchRef])
	}
}

func TestRunner_MaxItems(t *testing.T) {
	source := newSliceSource(numberedItems(10)...)

	config := testConfig()
	config.BatchSize = 2
	config.MaxItems = 4
	runner, err := NewRunner(config, Dependencies{
		Source:   source,
		Sessions: mocks.NewMockSessionPool(),
	}, setupTestLogger())
	require.NoError(t, err)

	res := runJob(t, runner, context.Background())

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, int64(4), res.Processed)
	assert.Equal(t, int64(4), res.Stats.Counters.Expected)
}

// blockingSessions returns a pool whose submissions wait until release is
// closed, and a channel signalled on the first submission
func blockingSessions() (*mocks.MockSessionPool, chan struct{}, <-chan struct{}) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	sessions := mocks.NewMockSessionPool(mocks.WithSubmitFn(
		func(ctx context.Context, req *remote.Request) (remote.Result, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return mocks.NewMockResult(), nil
		},
	))
	return sessions, release, started
}

func TestRunner_Stop(t *testing.T) {
	sessions, release, started := blockingSessions()

	config := testConfig()
	config.BatchSize = 1
	config.ThreadCount = 1
	runner, err := NewRunner(config, Dependencies{
		Source:   newSliceSource(numberedItems(8)...),
		Sessions: sessions,
	}, setupTestLogger())
	require.NoError(t, err)

	done := make(chan Result, 1)
	go func() { done <- runner.Run(context.Background()) }()

	<-started
	runner.Stop()
	close(release)

	var res Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for job to stop")
	}

	assert.Equal(t, StatusStopped, res.Status)
	assert.NoError(t, res.Err)

	snap := res.Stats.Counters
	assert.Less(t, snap.Submitted, int64(8))
	assert.Equal(t, snap.Submitted, snap.Completed()+snap.Abandoned)
	assert.Equal(t, int64(1), snap.Succeeded)

	// stopping a finished job has no effect
	runner.Stop()
	assert.Equal(t, snap, runner.Stats().Counters)
}

func TestRunner_StopBeforeRun(t *testing.T) {
	sessions := mocks.NewMockSessionPool()
	runner, err := NewRunner(testConfig(), Dependencies{
		Source:   newSliceSource("a", "b"),
		Sessions: sessions,
	}, setupTestLogger())
	require.NoError(t, err)

	runner.Stop()
	res := runJob(t, runner, context.Background())

	assert.Equal(t, StatusStopped, res.Status)
	assert.Zero(t, sessions.Submits())
}

func TestRunner_StopDuringInitSkipsSource(t *testing.T) {
	var runner *Runner
	sessions := mocks.NewMockSessionPool(mocks.WithSubmitFn(
		func(ctx context.Context, req *remote.Request) (remote.Result, error) {
			if req.Statement == "SELECT 'init'" {
				runner.Stop()
			}
			return mocks.NewMockResult(), nil
		},
	))
	source := newSliceSource("a", "b")

	config := testConfig()
	config.InitStatement = "SELECT 'init'"
	config.PreBatchStatement = "SELECT 'pre'"
	var err error
	runner, err = NewRunner(config, Dependencies{Source: source, Sessions: sessions}, setupTestLogger())
	require.NoError(t, err)

	res := runJob(t, runner, context.Background())

	assert.Equal(t, StatusStopped, res.Status)
	assert.Equal(t, []string{"SELECT 'init'"}, statements(sessions.Requests()))
	source.mu.Lock()
	defer source.mu.Unlock()
	assert.False(t, source.opened)
}

func TestRunner_CancelledBeforeRun(t *testing.T) {
	source := newSliceSource("a")
	sessions := mocks.NewMockSessionPool()

	config := testConfig()
	config.InitStatement = "SELECT 'init'"
	runner, err := NewRunner(config, Dependencies{Source: source, Sessions: sessions}, setupTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := runJob(t, runner, ctx)

	assert.Equal(t, StatusStopped, res.Status)
	assert.Zero(t, sessions.Submits())
	source.mu.Lock()
	defer source.mu.Unlock()
	assert.False(t, source.opened)
}

func TestRunner_ContextCancelStops(t *testing.T) {
	sessions, release, started := blockingSessions()

	config := testConfig()
	config.BatchSize = 1
	config.ThreadCount = 1
	runner, err := NewRunner(config, Dependencies{
		Source:   newSliceSource(numberedItems(5)...),
		Sessions: sessions,
	}, setupTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() { done <- runner.Run(ctx) }()

	<-started
	cancel()

	// the executing task is not interrupted
	assert.Eventually(t, func() bool {
		return runner.Stats().PoolState != task.StateRunning
	}, time.Second, 5*time.Millisecond)
	close(release)

	var res Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for job to stop")
	}

	assert.Equal(t, StatusStopped, res.Status)
	assert.Equal(t, int64(1), res.Stats.Counters.Succeeded)
}

func TestRunner_ControlFileStop(t *testing.T) {
	sessions, release, started := blockingSessions()
	controlFile := filepath.Join(t.TempDir(), "control.env")
	writeControlFile(t, controlFile, "COMMAND=STOP\n", time.Now().Add(-time.Minute))

	config := testConfig()
	config.BatchSize = 1
	config.ThreadCount = 1
	config.ControlFile = controlFile
	config.ControlPollInterval = 10 * time.Millisecond
	config.PostBatchStatement = "SELECT 'post'"
	runner, err := NewRunner(config, Dependencies{
		Source:   newSliceSource(numberedItems(5)...),
		Sessions: sessions,
	}, setupTestLogger())
	require.NoError(t, err)

	done := make(chan Result, 1)
	go func() { done <- runner.Run(context.Background()) }()

	<-started
	assert.Eventually(t, func() bool {
		return runner.Stats().PoolState != task.StateRunning
	}, time.Second, 5*time.Millisecond)
	close(release)

	var res Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for job to stop")
	}

	assert.Equal(t, StatusStopped, res.Status)
	assert.NotContains(t, statements(sessions.Requests()), "SELECT 'post'")
}

func TestRunner_ControlFilePause(t *testing.T) {
	sessions := mocks.NewMockSessionPool()
	controlFile := filepath.Join(t.TempDir(), "control.env")
	base := time.Now().Add(-time.Hour)
	writeControlFile(t, controlFile, "COMMAND=PAUSE\n", base)

	config := testConfig()
	config.BatchSize = 1
	config.ThreadCount = 1
	config.ControlFile = controlFile
	config.ControlPollInterval = 10 * time.Millisecond

	// the first task runs slowly enough for the watcher to pause the pool
	first := make(chan struct{})
	sessions.SubmitFn = func(ctx context.Context, req *remote.Request) (remote.Result, error) {
		select {
		case <-first:
		default:
			close(first)
			time.Sleep(50 * time.Millisecond)
		}
		return mocks.NewMockResult(), nil
	}

	runner, err := NewRunner(config, Dependencies{
		Source:   newSliceSource(numberedItems(4)...),
		Sessions: sessions,
	}, setupTestLogger())
	require.NoError(t, err)

	done := make(chan Result, 1)
	go func() { done <- runner.Run(context.Background()) }()

	assert.Eventually(t, func() bool {
		stats := runner.Stats()
		return stats.Paused && stats.Active == 0
	}, 2*time.Second, 5*time.Millisecond)

	paused := runner.Stats().Counters.Completed()
	assert.Less(t, paused, int64(4))

	writeControlFile(t, controlFile, "COMMAND=RESUME\nTHREAD_COUNT=2\n", base.Add(time.Minute))

	var res Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for job to resume")
	}

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, int64(4), res.Processed)
}
