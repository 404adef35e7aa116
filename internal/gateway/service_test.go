package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mehmetcc/zerodrop/internal/audit"
	"github.com/mehmetcc/zerodrop/internal/authentication"
	"github.com/mehmetcc/zerodrop/internal/denylist"
)

type DenylistMock struct{ mock.Mock }

func (m *DenylistMock) IsAllowed(ctx context.Context, kind denylist.Kind, text string) (bool, error) {
	args := m.Called(ctx, kind, text)
	return args.Bool(0), args.Error(1)
}

func (m *DenylistMock) AddEntry(ctx context.Context, kind denylist.Kind, text string, adminID uint) (uint, error) {
	panic("not used in gateway tests")
}

// countingRunner records every spawn and replays a canned result.
type countingRunner struct {
	spawns atomic.Int32
	result *RunResult
	err    error
}

func (r *countingRunner) Run(ctx context.Context, command string) (*RunResult, error) {
	r.spawns.Add(1)
	return r.result, r.err
}

type QueryExecutorMock struct{ mock.Mock }

func (m *QueryExecutorMock) Execute(ctx context.Context, query string) (*QueryResult, error) {
	args := m.Called(ctx, query)
	res, _ := args.Get(0).(*QueryResult)
	return res, args.Error(1)
}

type recorderSpy struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorderSpy) Record(ctx context.Context, event *audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
}

func (r *recorderSpy) last(t *testing.T) audit.Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.events)
	return r.events[len(r.events)-1]
}

var alice = &authentication.Claims{AccountID: 1, Identifier: "alice"}

func newService(filter denylist.DenylistService, runner Runner, executor QueryExecutor, rec audit.Recorder) GatewayService {
	return NewGatewayService(filter, runner, executor, rec, zap.NewNop())
}

func TestExecuteCommand_BlockedNeverSpawns(t *testing.T) {
	filter := new(DenylistMock)
	filter.On("IsAllowed", mock.Anything, denylist.KindCommand, "rm -rf /").Return(false, nil)
	runner := &countingRunner{result: &RunResult{}}
	rec := &recorderSpy{}

	_, err := newService(filter, runner, nil, rec).ExecuteCommand(context.Background(), "rm -rf /", alice)

	assert.ErrorIs(t, err, ErrBlocked)
	assert.Zero(t, runner.spawns.Load())
	event := rec.last(t)
	assert.Equal(t, audit.OutcomeBlocked, event.Outcome)
	assert.Equal(t, "rm -rf /", event.Input)
	assert.Equal(t, uint(1), event.AccountID)
	assert.Equal(t, "alice", event.Identifier)
	filter.AssertExpectations(t)
}

func TestExecuteCommand_ReturnsTrimmedOutput(t *testing.T) {
	filter := new(DenylistMock)
	filter.On("IsAllowed", mock.Anything, denylist.KindCommand, "ls -la").Return(true, nil)
	runner := &countingRunner{result: &RunResult{Stdout: "file1\nfile2\n"}}
	rec := &recorderSpy{}

	output, err := newService(filter, runner, nil, rec).ExecuteCommand(context.Background(), "ls -la", alice)

	require.NoError(t, err)
	assert.Equal(t, "file1\nfile2", output)
	assert.Equal(t, int32(1), runner.spawns.Load())
	assert.Equal(t, audit.OutcomeSucceeded, rec.last(t).Outcome)
}

func TestExecuteCommand_EmptyOutputSentinel(t *testing.T) {
	filter := new(DenylistMock)
	filter.On("IsAllowed", mock.Anything, denylist.KindCommand, "true").Return(true, nil)
	runner := &countingRunner{result: &RunResult{Stdout: "  \n"}}

	output, err := newService(filter, runner, nil, &recorderSpy{}).ExecuteCommand(context.Background(), "true", alice)

	require.NoError(t, err)
	assert.Equal(t, EmptyOutputMessage, output)
}

func TestExecuteCommand_NonZeroExit(t *testing.T) {
	filter := new(DenylistMock)
	filter.On("IsAllowed", mock.Anything, denylist.KindCommand, "cat nope").Return(true, nil)
	runner := &countingRunner{result: &RunResult{ExitCode: 1, Stderr: "cat: nope: No such file or directory\n"}}
	rec := &recorderSpy{}

	_, err := newService(filter, runner, nil, rec).ExecuteCommand(context.Background(), "cat nope", alice)

	assert.ErrorIs(t, err, ErrNonZeroExit)
	var exitErr *NonZeroExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode)
	assert.Equal(t, "cat: nope: No such file or directory", exitErr.Stderr)
	assert.Equal(t, audit.OutcomeFailed, rec.last(t).Outcome)
	assert.Equal(t, exitErr.Stderr, rec.last(t).Detail)
}

func TestExecuteCommand_Timeout(t *testing.T) {
	filter := new(DenylistMock)
	filter.On("IsAllowed", mock.Anything, denylist.KindCommand, "sleep 10").Return(true, nil)
	runner := &countingRunner{err: ErrTimeout}
	rec := &recorderSpy{}

	_, err := newService(filter, runner, nil, rec).ExecuteCommand(context.Background(), "sleep 10", alice)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, audit.OutcomeTimedOut, rec.last(t).Outcome)
}

func TestExecuteCommand_EmptyInputSkipsFilter(t *testing.T) {
	filter := new(DenylistMock)
	runner := &countingRunner{}

	_, err := newService(filter, runner, nil, &recorderSpy{}).ExecuteCommand(context.Background(), "  ", alice)

	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, runner.spawns.Load())
	filter.AssertNotCalled(t, "IsAllowed", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteCommand_FilterFailureIsNotAllow(t *testing.T) {
	filter := new(DenylistMock)
	filter.On("IsAllowed", mock.Anything, denylist.KindCommand, "ls").Return(false, errors.New("db down"))
	runner := &countingRunner{}

	_, err := newService(filter, runner, nil, &recorderSpy{}).ExecuteCommand(context.Background(), "ls", alice)

	assert.EqualError(t, err, "db down")
	assert.Zero(t, runner.spawns.Load())
}

func TestExecuteQuery(t *testing.T) {
	rows := &QueryResult{ReturnsRows: true, Rows: []Row{{Columns: []string{"n"}, Values: []any{int64(1)}}}}

	t.Run("allowed", func(t *testing.T) {
		filter := new(DenylistMock)
		filter.On("IsAllowed", mock.Anything, denylist.KindQuery, "SELECT 1 AS n").Return(true, nil)
		executor := new(QueryExecutorMock)
		executor.On("Execute", mock.Anything, "SELECT 1 AS n").Return(rows, nil)
		rec := &recorderSpy{}

		res, err := newService(filter, nil, executor, rec).ExecuteQuery(context.Background(), "SELECT 1 AS n", alice)

		require.NoError(t, err)
		assert.Same(t, rows, res)
		assert.Equal(t, audit.ActionQuery, rec.last(t).Action)
		assert.Equal(t, audit.OutcomeSucceeded, rec.last(t).Outcome)
	})

	t.Run("blocked", func(t *testing.T) {
		filter := new(DenylistMock)
		filter.On("IsAllowed", mock.Anything, denylist.KindQuery, "DROP TABLE accounts").Return(false, nil)
		executor := new(QueryExecutorMock)
		rec := &recorderSpy{}

		_, err := newService(filter, nil, executor, rec).ExecuteQuery(context.Background(), "DROP TABLE accounts", alice)

		assert.ErrorIs(t, err, ErrBlocked)
		executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
		assert.Equal(t, audit.OutcomeBlocked, rec.last(t).Outcome)
	})

	t.Run("driver error", func(t *testing.T) {
		filter := new(DenylistMock)
		filter.On("IsAllowed", mock.Anything, denylist.KindQuery, "SELEC 1").Return(true, nil)
		executor := new(QueryExecutorMock)
		executor.On("Execute", mock.Anything, "SELEC 1").Return(nil, &DBError{Err: errors.New(`syntax error near "SELEC"`)})
		rec := &recorderSpy{}

		_, err := newService(filter, nil, executor, rec).ExecuteQuery(context.Background(), "SELEC 1", alice)

		assert.ErrorIs(t, err, ErrDatabase)
		assert.Equal(t, audit.OutcomeFailed, rec.last(t).Outcome)
		assert.Contains(t, rec.last(t).Detail, "syntax error")
	})
}
