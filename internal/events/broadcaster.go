// Package events provides the SSE event broadcaster that fans out snapshot
// change notifications to connected clients.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kennedydane/static-server/internal/metrics"
)

const (
	// EventUpdate signals that a new snapshot replaced the current one.
	EventUpdate = "update"

	// subscriberBuffer is the per-subscriber queue depth. A subscriber whose
	// queue fills up is dropped rather than allowed to stall the broadcast.
	subscriberBuffer = 16
)

// Event describes one snapshot change. Clients re-fetch the tree on receipt;
// the payload is advisory.
type Event struct {
	Type      string    `json:"type"`
	BuiltAt   time.Time `json:"built_at"`
	Files     int       `json:"files"`
	Dirs      int       `json:"dirs"`
	Timestamp int64     `json:"timestamp"`
}

// Marshal serializes an event to JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Subscriber is one connected client's notification queue. Receive from C;
// the channel is closed when the subscriber is unsubscribed or dropped.
type Subscriber struct {
	ID string
	C  <-chan Event

	ch chan Event
}

// Broadcaster manages subscribers and publishes events to all of them.
// Publishing is decoupled per subscriber: a blocked client never delays
// delivery to the others.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]*Subscriber
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]*Subscriber)}
}

// Subscribe registers a new subscriber. The caller must call Unsubscribe when
// the underlying connection closes.
func (b *Broadcaster) Subscribe() *Subscriber {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscriber{ID: uuid.NewString(), C: ch, ch: ch}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	n := len(b.subs)
	b.mu.Unlock()

	metrics.SetSSEConnectionsActive(n)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Idempotent: safe
// to call for an already-removed or never-registered subscriber.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[sub.ID]; ok {
		delete(b.subs, sub.ID)
		close(sub.ch)
	}
	n := len(b.subs)
	b.mu.Unlock()

	metrics.SetSSEConnectionsActive(n)
}

// Publish delivers event to every registered subscriber. A subscriber whose
// buffer is full is removed and its channel closed, so one stalled client
// cannot block or starve the rest.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	b.mu.Lock()
	var dropped int
	for id, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			delete(b.subs, id)
			close(sub.ch)
			dropped++
		}
	}
	n := len(b.subs)
	b.mu.Unlock()

	for i := 0; i < dropped; i++ {
		metrics.RecordSubscriberDropped()
	}
	if dropped > 0 {
		metrics.SetSSEConnectionsActive(n)
	}
	metrics.RecordSSEEvent()
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
