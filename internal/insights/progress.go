package insights

import (
	"math"
	"sync"
)

// State is a step of the insights pipeline.
type State string

const (
	StateIdle            State = "idle"
	StateParsing         State = "parsing"
	StateChunking        State = "chunking"
	StateProcessingChunk State = "processing_chunk"
	StateWaiting         State = "waiting"
	StateMerging         State = "merging"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Progress is a point-in-time view of a run.
type Progress struct {
	State       State  `json:"state"`
	Percent     int    `json:"percent"`
	Status      string `json:"status"`
	Chunk       int    `json:"chunk,omitempty"`
	TotalChunks int    `json:"total_chunks,omitempty"`
}

// ProgressFunc receives every progress change. It is called synchronously from
// the pipeline goroutine.
type ProgressFunc func(Progress)

// percent is round(completed/total*100), clamped to [0, 100].
func percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(completed) / float64(total) * 100))
	return max(0, min(100, p))
}

// tracker publishes progress and keeps the percentage from going backwards.
type tracker struct {
	mu      sync.Mutex
	current Progress
	notify  ProgressFunc
}

func newTracker(notify ProgressFunc) *tracker {
	return &tracker{current: Progress{State: StateIdle}, notify: notify}
}

func (t *tracker) update(fn func(p *Progress)) {
	t.mu.Lock()
	before := t.current.Percent
	fn(&t.current)
	if t.current.Percent < before {
		t.current.Percent = before
	}
	snapshot := t.current
	t.mu.Unlock()

	if t.notify != nil {
		t.notify(snapshot)
	}
}

func (t *tracker) set(state State, pct int, status string) {
	t.update(func(p *Progress) {
		p.State = state
		p.Percent = pct
		p.Status = status
	})
}

func (t *tracker) status(state State, status string) {
	t.update(func(p *Progress) {
		p.State = state
		p.Status = status
	})
}
