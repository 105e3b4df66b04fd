package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func triggerEnv(t *testing.T, run RunFunc) (*Trigger, string, context.CancelFunc) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cache-v3.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewTrigger(path, run, testLogger(), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tr.Watch(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("watch loop did not stop")
		}
	})
	return tr, path, cancel
}

func TestTrigger_InitialRun(t *testing.T) {
	var runs atomic.Int32
	tr, _, _ := triggerEnv(t, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return runs.Load() >= 1
	}, "initial run never happened")

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return tr.State() == StateIdle
	}, "trigger should return to idle")
}

func TestTrigger_FileChangeTriggersRun(t *testing.T) {
	var runs atomic.Int32
	_, path, _ := triggerEnv(t, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return runs.Load() >= 1
	}, "initial run never happened")

	if err := os.WriteFile(path, []byte(`{"cache":"{}"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return runs.Load() >= 2
	}, "file change never triggered a run")
}

func TestTrigger_UnrelatedFileIgnored(t *testing.T) {
	var runs atomic.Int32
	_, path, _ := triggerEnv(t, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return runs.Load() >= 1
	}, "initial run never happened")

	other := filepath.Join(filepath.Dir(path), "unrelated.txt")
	if err := os.WriteFile(other, []byte("noise"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1 (unrelated file must not trigger)", runs.Load())
	}
}

// TestTrigger_NeverConcurrent rewrites the snapshot repeatedly while each
// run sleeps, and checks that no two runs ever overlap and that the burst
// coalesces instead of producing one run per write.
func TestTrigger_NeverConcurrent(t *testing.T) {
	var runs, inFlight, overlaps atomic.Int32
	_, path, _ := triggerEnv(t, func(context.Context) error {
		if inFlight.Add(1) > 1 {
			overlaps.Add(1)
		}
		defer inFlight.Add(-1)
		time.Sleep(30 * time.Millisecond)
		runs.Add(1)
		return nil
	})

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return runs.Load() >= 1
	}, "initial run never happened")

	for i := 0; i < 10; i++ {
		if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return runs.Load() >= 2
	}, "burst never triggered a run")
	time.Sleep(500 * time.Millisecond)

	if overlaps.Load() != 0 {
		t.Errorf("%d overlapping runs observed", overlaps.Load())
	}
	if n := runs.Load(); n > 6 {
		t.Errorf("runs = %d for a 10-write burst, expected coalescing", n)
	}
}

func TestTrigger_FailedCycleKeepsWatching(t *testing.T) {
	var runs atomic.Int32
	tr, path, _ := triggerEnv(t, func(context.Context) error {
		runs.Add(1)
		return errors.New("pipeline exploded")
	})

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		info, ok := tr.LastCycle()
		return ok && info.Err != ""
	}, "last cycle never reported the failure")

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return tr.State() == StateIdle
	}, "trigger should return to idle after a failed run")

	// The next modification still triggers a run.
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return runs.Load() >= 2
	}, "failed cycle stopped the watch loop")
}

func TestTrigger_StopsOnCancel(t *testing.T) {
	var runs atomic.Int32
	_, path, cancel := triggerEnv(t, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return runs.Load() >= 1
	}, "initial run never happened")

	cancel()
	time.Sleep(100 * time.Millisecond)
	before := runs.Load()

	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if runs.Load() != before {
		t.Error("cancelled trigger should not run again")
	}
}
