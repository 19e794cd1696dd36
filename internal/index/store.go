package index

import "sync/atomic"

// Store holds the current snapshot. Readers get whatever snapshot is current
// at the instant of the call; the swap is a single atomic pointer write, so a
// reader can never observe a partially built tree.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store holding an empty snapshot so readers before the
// first build still get a valid tree.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Snapshot{Root: &Node{Name: "/", Path: "/", IsDir: true}})
	return s
}

// Current returns the latest built snapshot. Non-blocking.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Replace atomically makes snap the current snapshot.
func (s *Store) Replace(snap *Snapshot) {
	s.current.Store(snap)
}
