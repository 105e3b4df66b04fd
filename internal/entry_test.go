package internal

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// freePort reserves an ephemeral port and releases it for the server under
// test.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(dir, "cache-v3.json")
	if err := os.WriteFile(snap, []byte(`{"cache":"{\"state\":{}}"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	cfg.App.HTTP.Port = freePort(t)
	cfg.Snapshot.Path = snap
	cfg.SQLite.Path = filepath.Join(dir, "munin.db")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, WithConfig(cfg))
	}()

	// Let the watcher and HTTP server come up before cancelling.
	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("Run without config should fail")
	}
}
