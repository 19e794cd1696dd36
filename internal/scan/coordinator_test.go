package scan

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kennedydane/static-server/internal/cache"
	"github.com/kennedydane/static-server/internal/checksum"
	"github.com/kennedydane/static-server/internal/events"
	"github.com/kennedydane/static-server/internal/index"
	"github.com/kennedydane/static-server/internal/watch"
)

type fakeSource struct {
	ch chan watch.Change
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan watch.Change, 64)}
}

func (f *fakeSource) Start(ctx context.Context) error { return nil }
func (f *fakeSource) Events() <-chan watch.Change     { return f.ch }
func (f *fakeSource) Stop() error                     { return nil }

// fakeBuilder counts builds and can block mid-build via gate.
type fakeBuilder struct {
	builds int32
	gate   chan struct{} // nil = never block
}

func (f *fakeBuilder) Build(ctx context.Context) (*index.Snapshot, error) {
	atomic.AddInt32(&f.builds, 1)
	if f.gate != nil {
		<-f.gate
	}
	return &index.Snapshot{
		Root:    &index.Node{Name: "/", Path: "/", IsDir: true},
		BuiltAt: time.Now(),
	}, nil
}

func (f *fakeBuilder) count() int32 { return atomic.LoadInt32(&f.builds) }

func startCoordinator(t *testing.T, builder Rebuilder, source watch.Source, debounce time.Duration) (*Coordinator, context.CancelFunc) {
	t.Helper()
	c := New(builder, index.NewStore(), events.NewBroadcaster(), source, debounce)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Run(ctx); err != nil {
			t.Errorf("Run failed: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
	return c, cancel
}

func TestBurstCoalescing(t *testing.T) {
	src := newFakeSource()
	builder := &fakeBuilder{}
	startCoordinator(t, builder, src, 50*time.Millisecond)

	// A burst of changes within one debounce window.
	for i := 0; i < 20; i++ {
		src.ch <- watch.Change{Path: "f", Op: "create"}
	}

	time.Sleep(300 * time.Millisecond)
	if got := builder.count(); got != 1 {
		t.Errorf("expected exactly 1 rebuild for a burst, got %d", got)
	}
}

func TestChangesDuringBuildCoalesce(t *testing.T) {
	src := newFakeSource()
	builder := &fakeBuilder{gate: make(chan struct{})}
	startCoordinator(t, builder, src, 20*time.Millisecond)

	src.ch <- watch.Change{Path: "a", Op: "create"}

	// Wait for the first build to start and block.
	deadline := time.Now().Add(2 * time.Second)
	for builder.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first build never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// New changes while the build is in flight.
	for i := 0; i < 10; i++ {
		src.ch <- watch.Change{Path: "b", Op: "modify"}
	}

	builder.gate <- struct{}{} // finish first build
	builder.gate <- struct{}{} // finish the single follow-up build

	time.Sleep(200 * time.Millisecond)
	if got := builder.count(); got != 2 {
		t.Errorf("expected exactly 2 builds (one in flight + one coalesced), got %d", got)
	}
}

func TestTriggerRescanCoalesces(t *testing.T) {
	src := newFakeSource()
	builder := &fakeBuilder{}
	c, _ := startCoordinator(t, builder, src, 50*time.Millisecond)

	for i := 0; i < 5; i++ {
		c.TriggerRescan()
	}

	time.Sleep(300 * time.Millisecond)
	if got := builder.count(); got != 1 {
		t.Errorf("expected 1 rebuild for repeated manual triggers, got %d", got)
	}
}

func TestShutdownStopsLoop(t *testing.T) {
	src := newFakeSource()
	builder := &fakeBuilder{}
	_, cancel := startCoordinator(t, builder, src, 20*time.Millisecond)
	cancel()
	// Cleanup asserts Run returns.
}

// TestRebuildCancelledContext verifies a cancelled build neither swaps the
// snapshot nor notifies subscribers; the previous snapshot stays current.
func TestRebuildCancelledContext(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	calc, err := checksum.New(checksum.DefaultOptions())
	if err != nil {
		t.Fatalf("checksum.New failed: %v", err)
	}
	builder := index.NewBuilder(root, ".description", calc, cache.New())
	store := index.NewStore()
	broadcaster := events.NewBroadcaster()
	c := New(builder, store, broadcaster, newFakeSource(), 20*time.Millisecond)

	if err := c.Rebuild(context.Background(), "startup"); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	before := store.Current()

	sub := broadcaster.Subscribe()
	defer broadcaster.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Rebuild(ctx, "change"); err == nil {
		t.Fatal("Rebuild with cancelled context should fail")
	}

	if store.Current() != before {
		t.Error("failed rebuild must not replace the current snapshot")
	}
	select {
	case ev := <-sub.C:
		t.Errorf("failed rebuild must not publish an event, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestSubscriberSeesNewFile wires the real builder, store and broadcaster
// together: after a file appears and one rescan completes, the subscriber
// gets exactly one event and the current snapshot contains the file.
func TestSubscriberSeesNewFile(t *testing.T) {
	root := t.TempDir()
	calc, err := checksum.New(checksum.DefaultOptions())
	if err != nil {
		t.Fatalf("checksum.New failed: %v", err)
	}
	builder := index.NewBuilder(root, ".description", calc, cache.New())
	store := index.NewStore()
	broadcaster := events.NewBroadcaster()
	src := newFakeSource()

	c := New(builder, store, broadcaster, src, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	sub := broadcaster.Subscribe()
	defer broadcaster.Unsubscribe(sub)

	if err := os.WriteFile(filepath.Join(root, "new.txt"), []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	src.ch <- watch.Change{Path: "new.txt", Op: "create"}

	select {
	case ev := <-sub.C:
		if ev.Type != events.EventUpdate {
			t.Errorf("unexpected event type %q", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update event")
	}

	// Notification is published strictly after the swap.
	snap := store.Current()
	if index.FindByPath(snap.Root, "/new.txt") == nil {
		t.Error("current snapshot should contain /new.txt after the event")
	}

	// Exactly one event for one underlying change.
	select {
	case ev := <-sub.C:
		t.Errorf("unexpected extra event: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
