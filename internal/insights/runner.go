package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/csvchunk"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/metrics"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrRunInProgress = errors.New("an insights run is already in progress")
	ErrRunNotFound   = errors.New("insights run not found")
)

// Run is one background execution of the pipeline.
type Run struct {
	id        string
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time

	mu         sync.RWMutex
	progress   Progress
	result     *Result
	err        error
	finishedAt time.Time
}

// RunSnapshot is the externally visible state of a run.
type RunSnapshot struct {
	ID string `json:"id"`
	Progress
	Error      string     `json:"error,omitempty"`
	Cancelled  bool       `json:"cancelled,omitempty"`
	Result     *Result    `json:"result,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (r *Run) ID() string { return r.id }

// Done is closed once the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

func (r *Run) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := RunSnapshot{
		ID:        r.id,
		Progress:  r.progress,
		Result:    r.result,
		StartedAt: r.startedAt,
	}
	if r.err != nil {
		snap.Error = r.err.Error()
		snap.Cancelled = errors.Is(r.err, context.Canceled)
	}
	if !r.finishedAt.IsZero() {
		finished := r.finishedAt
		snap.FinishedAt = &finished
	}
	return snap
}

// Wait blocks until the run finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) (RunSnapshot, error) {
	select {
	case <-r.done:
		return r.Snapshot(), nil
	case <-ctx.Done():
		return r.Snapshot(), ctx.Err()
	}
}

func (r *Run) setProgress(p Progress) {
	r.mu.Lock()
	r.progress = p
	r.mu.Unlock()
}

// Runner owns background runs. At most one run is in flight at a time;
// finished runs stay queryable until evicted from the history cache.
type Runner struct {
	pipeline *Pipeline
	logger   *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	active *Run
	runs   *lru.Cache[string, *Run]
}

func NewRunner(pipeline *Pipeline, history int, logger *slog.Logger) (*Runner, error) {
	runs, err := lru.New[string, *Run](max(history, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to create run history: %w", err)
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Runner{
		pipeline: pipeline,
		logger:   logger,
		baseCtx:  ctx,
		stop:     stop,
		runs:     runs,
	}, nil
}

// Start validates csvData and launches a run. It fails with ErrRunInProgress
// while another run is active, and with csvchunk.ErrEmptyCSV before any
// request is made when the file has no rows.
func (rn *Runner) Start(csvData []byte) (*Run, error) {
	if _, err := csvchunk.ParseBytes(csvData); err != nil {
		return nil, err
	}

	rn.mu.Lock()
	if rn.active != nil {
		rn.mu.Unlock()
		return nil, ErrRunInProgress
	}
	ctx, cancel := context.WithCancel(rn.baseCtx)
	run := &Run{
		id:        uuid.New().String(),
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now().UTC(),
		progress:  Progress{State: StateIdle, Status: "Queued"},
	}
	rn.active = run
	rn.runs.Add(run.id, run)
	rn.mu.Unlock()

	rn.logger.Info("insights run queued", "run_id", run.id, "bytes", len(csvData))
	go rn.execute(ctx, run, csvData)
	return run, nil
}

func (rn *Runner) execute(ctx context.Context, run *Run, csvData []byte) {
	defer run.cancel()

	result, err := rn.pipeline.Run(ctx, csvData, run.setProgress)

	run.mu.Lock()
	run.result = result
	run.err = err
	run.finishedAt = time.Now().UTC()
	state := run.progress.State
	elapsed := run.finishedAt.Sub(run.startedAt)
	run.mu.Unlock()

	chunks := 0
	if result != nil {
		chunks = result.Chunks
	}
	label := string(state)
	if err != nil && errors.Is(err, context.Canceled) {
		label = "cancelled"
	}
	metrics.RecordRun(label, elapsed.Seconds(), chunks)

	if err != nil {
		rn.logger.Error("insights run failed", "run_id", run.id, "error", err, "duration", elapsed)
	} else {
		rn.logger.Info("insights run completed", "run_id", run.id, "duration", elapsed)
	}

	rn.mu.Lock()
	if rn.active == run {
		rn.active = nil
	}
	rn.mu.Unlock()
	close(run.done)
}

func (rn *Runner) Get(id string) (*Run, bool) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.active != nil && rn.active.id == id {
		return rn.active, true
	}
	return rn.runs.Get(id)
}

// Active returns the in-flight run, if any.
func (rn *Runner) Active() (*Run, bool) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.active, rn.active != nil
}

// Cancel aborts a run and returns it. Cancelling a finished run is a no-op.
// The returned run stays usable even if history evicts it afterwards.
func (rn *Runner) Cancel(id string) (*Run, error) {
	run, ok := rn.Get(id)
	if !ok {
		return nil, ErrRunNotFound
	}
	run.cancel()
	return run, nil
}

// Shutdown cancels every run and waits for the active one to stop.
func (rn *Runner) Shutdown(ctx context.Context) error {
	rn.stop()
	if run, ok := rn.Active(); ok {
		_, err := run.Wait(ctx)
		return err
	}
	return nil
}
