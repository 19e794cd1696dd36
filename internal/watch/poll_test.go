package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitForChange(t *testing.T, src Source, timeout time.Duration) Change {
	t.Helper()
	select {
	case c := <-src.Events():
		return c
	case <-time.After(timeout):
		t.Fatal("timed out waiting for change signal")
		return Change{}
	}
}

func TestPollerDetectsCreate(t *testing.T) {
	root := t.TempDir()
	p := NewPoller(root, 20*time.Millisecond)
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "new.txt"), []byte("hi"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c := waitForChange(t, p, 2*time.Second)
	if c.Op != "create" || c.Path != "new.txt" {
		t.Errorf("unexpected change: %+v", c)
	}
}

func TestPollerDetectsModifyAndDelete(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("one"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	p := NewPoller(root, 20*time.Millisecond)
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Pre-existing file is baseline, not an event. Change its size so the
	// fingerprint differs even with coarse mtime granularity.
	if err := os.WriteFile(path, []byte("two plus more"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	c := waitForChange(t, p, 2*time.Second)
	if c.Op != "modify" || c.Path != "a.txt" {
		t.Errorf("unexpected change: %+v", c)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	c = waitForChange(t, p, 2*time.Second)
	if c.Op != "delete" || c.Path != "a.txt" {
		t.Errorf("unexpected change: %+v", c)
	}
}

func TestPollerStopIdempotent(t *testing.T) {
	p := NewPoller(t.TempDir(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestNewFallsBackToPolling(t *testing.T) {
	// Auto mode must produce a working source either way.
	src, err := New(ModeAuto, t.TempDir(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New(auto) failed: %v", err)
	}
	defer src.Stop()

	src2, err := New(ModePoll, t.TempDir(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New(poll) failed: %v", err)
	}
	if _, ok := src2.(*Poller); !ok {
		t.Errorf("expected *Poller for poll mode, got %T", src2)
	}
	src2.Stop()
}
