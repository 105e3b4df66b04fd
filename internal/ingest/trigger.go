package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// State is the trigger's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// RunFunc executes one full read-and-ingest pipeline pass.
type RunFunc func(ctx context.Context) error

// CycleInfo describes the outcome of one pipeline run.
type CycleInfo struct {
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	Err         string        `json:"error,omitempty"`
}

// Trigger watches the snapshot file and re-runs the pipeline when it
// changes. The trigger only knows "something changed, re-run": it is
// decoupled from what the pipeline actually does. Failures of a run are
// logged and never stop the watch loop.
type Trigger struct {
	path     string
	run      RunFunc
	logger   *slog.Logger
	debounce time.Duration

	state atomic.Int32

	mu       sync.Mutex
	last     CycleInfo
	hasCycle bool
}

// NewTrigger creates a trigger for the snapshot at path. debounce collapses
// bursts of filesystem events into one run.
func NewTrigger(path string, run RunFunc, logger *slog.Logger, debounce time.Duration) *Trigger {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &Trigger{
		path:     path,
		run:      run,
		logger:   logger,
		debounce: debounce,
	}
}

// State returns the current lifecycle state.
func (t *Trigger) State() State {
	return State(t.state.Load())
}

// LastCycle returns the outcome of the most recent pipeline run, if any.
func (t *Trigger) LastCycle() (CycleInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasCycle
}

// Watch runs the pipeline once synchronously (initial load), then blocks
// watching the snapshot's parent directory until ctx is cancelled. Watching
// the directory rather than the file survives editors and exporters that
// replace the file by rename.
//
// The watch loop is a single goroutine and runs cycles inline, so two runs
// can never overlap. Events arriving mid-run stay queued on the watcher
// channel and re-arm the debounce timer afterwards, coalescing any number
// of notifications into one follow-up run.
func (t *Trigger) Watch(ctx context.Context) error {
	t.cycle(ctx)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("trigger: new watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(t.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("trigger: watch %s: %w", dir, err)
	}

	t.logger.Info("trigger: started", slog.String("path", t.path))

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(t.debounce)
			timerCh = timer.C
		} else {
			timer.Reset(t.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			t.logger.Info("trigger: stopped")
			return nil

		case <-timerCh:
			t.cycle(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(t.path) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			t.logger.Debug("trigger: snapshot changed", slog.String("op", ev.Op.String()))
			schedule()

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			t.logger.Error("trigger: watch error", slog.String("error", werr.Error()))
		}
	}
}

// cycle runs one pipeline pass. The trigger is Processing for the duration
// of the run and returns to Idle regardless of outcome. A bad cycle never
// stops future cycles.
func (t *Trigger) cycle(ctx context.Context) {
	t.state.Store(int32(StateProcessing))
	defer t.state.Store(int32(StateIdle))

	start := time.Now()
	err := t.run(ctx)

	info := CycleInfo{CompletedAt: time.Now().UTC(), Duration: time.Since(start)}
	if err != nil {
		info.Err = err.Error()
		t.logger.Error("trigger: cycle failed", slog.String("error", err.Error()))
	} else {
		t.logger.Debug("trigger: cycle completed", slog.Duration("duration", info.Duration))
	}

	t.mu.Lock()
	t.last = info
	t.hasCycle = true
	t.mu.Unlock()
}
