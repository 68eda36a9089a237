package progress

import (
	"sync"
	"time"
)

// Update is one progress observation for a pipeline stage.
// Total is zero when the amount of work is not known in advance.
type Update struct {
	Stage      string
	Completed  int
	Total      int
	Elapsed    time.Duration
	Throughput float64       // items per second
	ETA        time.Duration // zero when unknown
	Done       bool
}

// Sink receives progress updates. Implementations must not block for long.
type Sink interface {
	Notify(Update)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Update)

// Notify calls f(u).
func (f SinkFunc) Notify(u Update) { f(u) }

// Tracker turns item completions into throttled Updates for one stage.
// It only observes: nothing it does feeds back into the work being measured.
//
// Tracker is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	stage    string
	total    int
	sink     Sink
	interval time.Duration
	now      func() time.Time
	start    time.Time
	lastEmit time.Time
	emitted  bool
	done     int
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker starts tracking a stage with total items. Updates go to sink at
// most once per interval; a nil sink makes the tracker a no-op.
func NewTracker(stage string, total int, sink Sink, interval time.Duration, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		stage:    stage,
		total:    total,
		sink:     sink,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.start = t.now()
	return t
}

// Observe records n more completed items.
func (t *Tracker) Observe(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done += n
	if t.sink == nil {
		return
	}

	now := t.now()
	if t.emitted && now.Sub(t.lastEmit) < t.interval {
		return
	}
	t.emit(now, false)
}

// Set records the absolute number of completed items.
func (t *Tracker) Set(completed int) {
	t.mu.Lock()
	n := completed - t.done
	t.mu.Unlock()

	t.Observe(n)
}

// Finish emits a final update regardless of the interval.
func (t *Tracker) Finish() Update {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.snapshot(t.now(), true)
	if t.sink != nil {
		t.sink.Notify(u)
	}
	return u
}

func (t *Tracker) emit(now time.Time, done bool) {
	t.lastEmit = now
	t.emitted = true
	t.sink.Notify(t.snapshot(now, done))
}

func (t *Tracker) snapshot(now time.Time, done bool) Update {
	elapsed := now.Sub(t.start)
	completed := t.done
	if completed < 0 {
		completed = 0
	}
	if t.total > 0 && completed > t.total {
		completed = t.total
	}

	u := Update{
		Stage:     t.stage,
		Completed: completed,
		Total:     t.total,
		Elapsed:   elapsed,
		Done:      done,
	}

	if elapsed > 0 && completed > 0 {
		u.Throughput = float64(completed) / elapsed.Seconds()
	}
	if u.Throughput > 0 && t.total > completed {
		remaining := float64(t.total-completed) / u.Throughput
		u.ETA = time.Duration(remaining * float64(time.Second))
	}

	return u
}
