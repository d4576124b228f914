package bluetooth

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestScannerIdempotent(t *testing.T) {
	var sweeps atomic.Int32
	s := NewScanner(context.Background(), 10*time.Millisecond, func() { sweeps.Add(1) })

	s.Start()
	s.Start()
	if !s.IsRunning() {
		t.Fatal("scanner should be running")
	}

	time.Sleep(55 * time.Millisecond)
	s.Stop()
	s.Stop()
	if s.IsRunning() {
		t.Fatal("scanner should be stopped")
	}

	// a second ticker would roughly double the count
	if n := sweeps.Load(); n < 1 || n > 7 {
		t.Errorf("%d sweeps in 55ms at a 10ms interval", n)
	}

	after := sweeps.Load()
	time.Sleep(30 * time.Millisecond)
	if sweeps.Load() != after {
		t.Error("sweeps continued after Stop")
	}
}

func TestScannerFollowsParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var sweeps atomic.Int32
	s := NewScanner(ctx, 5*time.Millisecond, func() { sweeps.Add(1) })

	s.Start()
	cancel()
	time.Sleep(20 * time.Millisecond)
	before := sweeps.Load()
	time.Sleep(20 * time.Millisecond)
	if sweeps.Load() != before {
		t.Error("ticker kept running after the parent context ended")
	}
}

func TestStorageWatcherDebounces(t *testing.T) {
	dir := t.TempDir()
	adapter := filepath.Join(dir, "00:11:22:33:44:55")
	if err := os.Mkdir(adapter, 0o755); err != nil {
		t.Fatal(err)
	}

	sweeps := make(chan struct{}, 8)
	w := newStorageWatcher(dir, func() { sweeps <- struct{}{} })
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, dev := range []string{"AA:AA:AA:AA:AA:AA", "BB:BB:BB:BB:BB:BB", "CC:CC:CC:CC:CC:CC"} {
		if err := os.Mkdir(filepath.Join(adapter, dev), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-sweeps:
	case <-time.After(2 * time.Second):
		t.Fatal("no sweep after device directories appeared")
	}
	select {
	case <-sweeps:
		t.Error("burst of changes triggered more than one sweep")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestStorageWatcherMissingDir(t *testing.T) {
	w := newStorageWatcher(filepath.Join(t.TempDir(), "missing"), func() {})
	if err := w.Start(context.Background()); err == nil {
		t.Error("Start() on a missing directory should fail")
	}
}
