// Package watch abstracts change observation over the served directory.
// Two sources implement it: native fsnotify notification and interval
// polling. The caller only consumes raw change signals; debouncing and
// rescan coalescing happen in the scan coordinator.
package watch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kennedydane/static-server/internal/logging"
)

// Mode selects the change-observation source.
type Mode string

const (
	// ModeAuto prefers native notification and falls back to polling.
	ModeAuto Mode = "auto"
	// ModeNotify forces fsnotify.
	ModeNotify Mode = "notify"
	// ModePoll forces interval polling.
	ModePoll Mode = "poll"
)

// Change is one raw filesystem change signal. Path and Op are advisory
// (logging only); any change triggers a full rescan.
type Change struct {
	Path string
	Op   string
}

// Source observes the tree and emits raw change signals.
type Source interface {
	// Start begins observing. It returns once observation is running;
	// signals are delivered on Events until ctx is cancelled or Stop is
	// called.
	Start(ctx context.Context) error

	// Events returns the raw change signal channel.
	Events() <-chan Change

	// Stop releases watch handles. Idempotent.
	Stop() error
}

// New selects and constructs a source for root. In auto mode a native
// watcher that fails to initialize is not fatal; the poller takes over.
func New(mode Mode, root string, interval time.Duration) (Source, error) {
	switch mode {
	case ModePoll:
		return NewPoller(root, interval), nil
	case ModeNotify:
		return NewNotifier(root)
	default:
		notifier, err := NewNotifier(root)
		if err != nil {
			logging.L().Warn("native watch unavailable, falling back to polling", zap.Error(err))
			return NewPoller(root, interval), nil
		}
		return notifier, nil
	}
}
