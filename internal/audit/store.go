package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store is the append-only persistence boundary for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByElection(ctx context.Context, electionID uuid.UUID) ([]Event, error)
}

// InMemoryStore keeps events in memory for tests and development.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByElection(_ context.Context, electionID uuid.UUID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.ElectionID == electionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every stored event; test helper.
func (s *InMemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
