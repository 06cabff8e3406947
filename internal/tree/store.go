package tree

import (
	"encoding/json"
	"sync"
)

// Store owns a Tree and notifies subscribers after every committed change.
// It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	tree *Tree
	rev  uint64

	subsMu sync.Mutex
	subs   map[chan struct{}]struct{}
}

func NewStore() *Store {
	return &Store{
		tree: New(),
		subs: map[chan struct{}]struct{}{},
	}
}

// Update runs fn against a copy of the tree and commits the copy only when
// fn succeeds, so a failed mutation leaves the store untouched.
func (s *Store) Update(fn func(t *Tree) error) error {
	s.mu.Lock()
	next := s.tree.Clone()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.tree = next
	s.rev++
	s.mu.Unlock()

	s.broadcast()
	return nil
}

// Replace swaps the whole tree for a copy of m.
func (s *Store) Replace(m map[string]any) {
	_ = s.Update(func(t *Tree) error {
		*t = *FromMap(m)
		return nil
	})
}

func (s *Store) Get(p Path) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Get(p)
}

// Snapshot returns a deep copy of the current root mapping.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Map()
}

// Revision counts committed updates.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

func (s *Store) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.tree)
}

// Subscribe returns a channel that receives a value after each committed
// change. Notifications coalesce: a slow reader sees at least one signal
// per burst, never one per change.
func (s *Store) Subscribe() (ch <-chan struct{}, cancel func()) {
	c := make(chan struct{}, 1)
	s.subsMu.Lock()
	s.subs[c] = struct{}{}
	s.subsMu.Unlock()

	var once sync.Once
	return c, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, c)
			s.subsMu.Unlock()
			close(c)
		})
	}
}

func (s *Store) broadcast() {
	s.subsMu.Lock()
	for c := range s.subs {
		select {
		case c <- struct{}{}:
		default:
		}
	}
	s.subsMu.Unlock()
}
