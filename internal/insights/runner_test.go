package insights

import (
	"context"
	"testing"
	"time"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/csvchunk"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, gen Generator) *Runner {
	t.Helper()
	runner, err := NewRunner(NewPipeline(gen, testOptions(), logger.Discard()), 4, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})
	return runner
}

func waitRun(t *testing.T, run *Run) RunSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := run.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func TestRunnerCompletesRun(t *testing.T) {
	runner := newTestRunner(t, newFakeGenerator(reply{text: reportA}))

	run, err := runner.Start(csvRows(2))
	require.NoError(t, err)
	require.NotEmpty(t, run.ID())

	snap := waitRun(t, run)
	assert.Equal(t, StateDone, snap.State)
	assert.Equal(t, 100, snap.Percent)
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.Result)
	assert.Len(t, snap.Result.Report.BiggestMoves, 1)
	assert.NotNil(t, snap.FinishedAt)

	got, ok := runner.Get(run.ID())
	require.True(t, ok)
	assert.Same(t, run, got)

	_, active := runner.Active()
	assert.False(t, active)
}

func TestRunnerRejectsEmptyCSV(t *testing.T) {
	gen := newFakeGenerator(reply{text: reportA})
	runner := newTestRunner(t, gen)

	run, err := runner.Start([]byte(header))
	require.ErrorIs(t, err, csvchunk.ErrEmptyCSV)
	assert.Nil(t, run)
	assert.Zero(t, gen.calls())
}

func TestRunnerSingleRunInFlight(t *testing.T) {
	release := make(chan struct{})
	gen := newFakeGenerator(reply{text: reportA})
	gen.onCall = func(int) { <-release }
	runner := newTestRunner(t, gen)

	first, err := runner.Start(csvRows(2))
	require.NoError(t, err)

	_, err = runner.Start(csvRows(2))
	require.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	waitRun(t, first)

	second, err := runner.Start(csvRows(2))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	waitRun(t, second)
}

func TestRunnerCancel(t *testing.T) {
	started := make(chan struct{})
	gen := newFakeGenerator(reply{text: reportA})
	gen.onCall = func(int) {
		close(started)
	}
	runner := newTestRunner(t, gen)

	// The first chunk blocks in the inter-request wait until cancelled.
	runner.pipeline.opts.Sleep = func(ctx context.Context, _ time.Duration) error {
		<-ctx.Done()
		return ctx.Err()
	}

	run, err := runner.Start(csvRows(4))
	require.NoError(t, err)
	<-started

	cancelled, err := runner.Cancel(run.ID())
	require.NoError(t, err)
	assert.Same(t, run, cancelled)
	snap := waitRun(t, run)

	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "Cancelled", snap.Status)
	assert.Contains(t, snap.Error, "cancelled")
	assert.True(t, snap.Cancelled)
	assert.Equal(t, 1, gen.calls())
}

func TestRunnerCancelUnknownRun(t *testing.T) {
	runner := newTestRunner(t, newFakeGenerator())
	run, err := runner.Cancel("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.Nil(t, run)

	_, ok := runner.Get("missing")
	assert.False(t, ok)
}

func TestRunnerHistoryEviction(t *testing.T) {
	gen := newFakeGenerator(reply{text: reportA})
	runner, err := NewRunner(NewPipeline(gen, testOptions(), logger.Discard()), 1, logger.Discard())
	require.NoError(t, err)

	first, err := runner.Start(csvRows(1))
	require.NoError(t, err)
	waitRun(t, first)

	second, err := runner.Start(csvRows(1))
	require.NoError(t, err)
	waitRun(t, second)

	_, ok := runner.Get(first.ID())
	assert.False(t, ok, "oldest run should be evicted")
	_, ok = runner.Get(second.ID())
	assert.True(t, ok)
}

func TestRunnerCancelFinishedRunReturnsIt(t *testing.T) {
	gen := newFakeGenerator(reply{text: reportA})
	runner := newTestRunner(t, gen)

	run, err := runner.Start(csvRows(1))
	require.NoError(t, err)
	waitRun(t, run)

	cancelled, err := runner.Cancel(run.ID())
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, run.ID(), cancelled.ID())

	snap := cancelled.Snapshot()
	assert.Equal(t, StateDone, snap.State)
	assert.False(t, snap.Cancelled)
}
