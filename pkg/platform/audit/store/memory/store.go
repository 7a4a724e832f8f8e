package memory

import (
	"context"
	"sync"

	audit "brickvault/pkg/platform/audit"
)

// InMemoryStore keeps audit events in memory, indexed by subject. Intended
// for tests and single-node development runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
	all    []audit.Event
}

func New() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.Subject] = append(s.events[event.Subject], event)
	s.all = append(s.all, event)
	return nil
}

// BySubject returns a copy of the events recorded for the given subject.
func (s *InMemoryStore) BySubject(subject string) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, len(s.events[subject]))
	copy(out, s.events[subject])
	return out
}

// All returns a copy of every recorded event in append order.
func (s *InMemoryStore) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, len(s.all))
	copy(out, s.all)
	return out
}
