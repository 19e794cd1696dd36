package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = 5 * time.Second

// fingerprint identifies one entry's observable state.
type fingerprint struct {
	size  int64
	mtime int64
	dir   bool
}

// Poller observes the tree by rescanning a path → (size, mtime) fingerprint
// at a fixed interval and diffing it against the previous pass. It is the
// fallback wherever native notification is unavailable or unreliable.
type Poller struct {
	root     string
	interval time.Duration
	out      chan Change

	mu    sync.Mutex
	state map[string]fingerprint

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewPoller creates a polling source for root.
func NewPoller(root string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		root:     root,
		interval: interval,
		out:      make(chan Change, 64),
		state:    make(map[string]fingerprint),
		stopped:  make(chan struct{}),
	}
}

// Start records the initial fingerprint and begins the polling loop. The
// initial pass is the baseline, so pre-existing files do not fire events.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	p.state = p.scan()
	p.mu.Unlock()

	go p.run(ctx)
	return nil
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.diff()
		case <-ctx.Done():
			return
		case <-p.stopped:
			return
		}
	}
}

// scan walks the tree and returns the current fingerprint map. Unreadable
// entries are simply absent; they show up as deletions until readable again.
func (p *Poller) scan() map[string]fingerprint {
	state := make(map[string]fingerprint)
	filepath.Walk(p.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if path == p.root {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return nil
		}
		state[rel] = fingerprint{
			size:  info.Size(),
			mtime: info.ModTime().UnixNano(),
			dir:   info.IsDir(),
		}
		return nil
	})
	return state
}

func (p *Poller) diff() {
	next := p.scan()

	p.mu.Lock()
	prev := p.state
	p.state = next
	p.mu.Unlock()

	for path, fp := range next {
		old, ok := prev[path]
		if !ok {
			p.emit(Change{Path: path, Op: "create"})
		} else if old != fp {
			p.emit(Change{Path: path, Op: "modify"})
		}
	}
	for path := range prev {
		if _, ok := next[path]; !ok {
			p.emit(Change{Path: path, Op: "delete"})
		}
	}
}

func (p *Poller) emit(c Change) {
	select {
	case p.out <- c:
	default:
	}
}

// Events returns the raw change signal channel.
func (p *Poller) Events() <-chan Change {
	return p.out
}

// Stop halts the polling loop. Idempotent.
func (p *Poller) Stop() error {
	p.stopOnce.Do(func() { close(p.stopped) })
	return nil
}
