package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kennedydane/static-server/internal/logging"
)

// Notifier observes the tree with fsnotify. fsnotify watches are not
// recursive, so every directory is added individually and directories
// created later are added as their create events arrive.
type Notifier struct {
	root string
	fsw  *fsnotify.Watcher
	out  chan Change

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewNotifier creates a native watcher for root. Errors here (inotify limits,
// unsupported filesystem) are the caller's cue to fall back to polling.
func NewNotifier(root string) (*Notifier, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Notifier{
		root:    root,
		fsw:     fsw,
		out:     make(chan Change, 64),
		stopped: make(chan struct{}),
	}, nil
}

// Start adds a watch for every directory under root and begins forwarding
// events. A subdirectory that cannot be watched is logged and skipped.
func (n *Notifier) Start(ctx context.Context) error {
	err := filepath.Walk(n.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			logging.L().Warn("cannot visit path for watching", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if werr := n.fsw.Add(path); werr != nil {
			logging.L().Warn("cannot watch directory", zap.String("path", path), zap.Error(werr))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk watch root %s: %w", n.root, err)
	}

	go n.run(ctx)
	return nil
}

func (n *Notifier) run(ctx context.Context) {
	for {
		select {
		case ev, ok := <-n.fsw.Events:
			if !ok {
				return
			}
			// New directories need their own watch before anything
			// inside them can be seen.
			if ev.Op.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if werr := n.fsw.Add(ev.Name); werr != nil {
						logging.L().Warn("cannot watch new directory", zap.String("path", ev.Name), zap.Error(werr))
					}
				}
			}
			n.emit(Change{Path: ev.Name, Op: ev.Op.String()})

		case err, ok := <-n.fsw.Errors:
			if !ok {
				return
			}
			logging.L().Warn("fsnotify error", zap.Error(err))

		case <-ctx.Done():
			return
		case <-n.stopped:
			return
		}
	}
}

// emit never blocks; a full buffer means a rescan is already inevitable.
func (n *Notifier) emit(c Change) {
	select {
	case n.out <- c:
	default:
	}
}

// Events returns the raw change signal channel.
func (n *Notifier) Events() <-chan Change {
	return n.out
}

// Stop closes the underlying watcher and releases all watch handles.
func (n *Notifier) Stop() error {
	var err error
	n.stopOnce.Do(func() {
		close(n.stopped)
		err = n.fsw.Close()
	})
	return err
}
