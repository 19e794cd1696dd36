// Package scan drives tree rebuilds: it consumes raw change signals,
// debounces bursts, runs at most one build at a time, swaps the finished
// snapshot in, and notifies subscribers.
package scan

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kennedydane/static-server/internal/events"
	"github.com/kennedydane/static-server/internal/index"
	"github.com/kennedydane/static-server/internal/logging"
	"github.com/kennedydane/static-server/internal/metrics"
	"github.com/kennedydane/static-server/internal/watch"
)

// DefaultDebounce is the quiet period after the last raw change signal
// before a rebuild fires. The exact value is deployment tuning, not a
// contract.
const DefaultDebounce = 500 * time.Millisecond

// Rebuilder produces a new snapshot of the tree.
type Rebuilder interface {
	Build(ctx context.Context) (*index.Snapshot, error)
}

// Coordinator owns the rebuild loop. All builds run inline on the loop
// goroutine, so overlapping builds are impossible; signals arriving during a
// build are buffered by the source and coalesce into exactly one follow-up
// rebuild.
type Coordinator struct {
	builder     Rebuilder
	store       *index.Store
	broadcaster *events.Broadcaster
	source      watch.Source
	debounce    time.Duration

	// manual holds at most one pending rescan request; extra requests
	// while one is pending coalesce into it.
	manual chan struct{}
}

// New creates a coordinator. debounce <= 0 selects DefaultDebounce.
func New(builder Rebuilder, store *index.Store, broadcaster *events.Broadcaster, source watch.Source, debounce time.Duration) *Coordinator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Coordinator{
		builder:     builder,
		store:       store,
		broadcaster: broadcaster,
		source:      source,
		debounce:    debounce,
		manual:      make(chan struct{}, 1),
	}
}

// TriggerRescan requests a rebuild through the same debounce/coalescing path
// as filesystem changes. Never blocks.
func (c *Coordinator) TriggerRescan() {
	select {
	case c.manual <- struct{}{}:
	default:
	}
}

// Rebuild runs one build immediately, swaps the snapshot in, and publishes
// the change event strictly after the swap so a client that re-fetches on
// notification always sees the new tree.
func (c *Coordinator) Rebuild(ctx context.Context, trigger string) error {
	start := time.Now()
	snap, err := c.builder.Build(ctx)
	if err != nil {
		return err
	}

	c.store.Replace(snap)
	c.broadcaster.Publish(events.Event{
		Type:    events.EventUpdate,
		BuiltAt: snap.BuiltAt,
		Files:   snap.Files,
		Dirs:    snap.Dirs,
	})

	duration := time.Since(start)
	metrics.RecordScan(trigger, duration, snap.Files+snap.Dirs)
	logging.L().Info("snapshot rebuilt",
		zap.String("trigger", trigger),
		zap.Int("files", snap.Files),
		zap.Int("dirs", snap.Dirs),
		zap.Int("skipped", len(snap.Skipped)),
		zap.Duration("duration", duration),
	)
	return nil
}

// Run starts the change source and loops until ctx is cancelled. Any number
// of raw signals within a debounce window yield a single rebuild. A build
// error is logged and the previous snapshot stays current; the next change
// retries.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.source.Start(ctx); err != nil {
		return err
	}
	defer c.source.Stop()

	var timer *time.Timer
	var fire <-chan time.Time

	arm := func() {
		if timer == nil {
			timer = time.NewTimer(c.debounce)
			fire = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.debounce)
	}

	for {
		select {
		case change := <-c.source.Events():
			logging.L().Debug("change detected",
				zap.String("path", change.Path),
				zap.String("op", change.Op),
			)
			arm()

		case <-c.manual:
			arm()

		case <-fire:
			if err := c.Rebuild(ctx, "change"); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logging.L().Error("rebuild failed", zap.Error(err))
			}

		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		}
	}
}
