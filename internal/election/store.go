package election

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sabha/pkg/platform/sentinel"
)

// Store is the persistence boundary for elections.
//
// Error Contract:
// - sentinel.ErrNotFound (wrapped) when the election does not exist
// - sentinel.ErrConflict (wrapped) when a compare-and-set loses a race
// - wrapped infrastructure errors otherwise
type Store interface {
	Create(ctx context.Context, e *Election) error
	FindByID(ctx context.Context, id uuid.UUID) (*Election, error)
	// UpdateWindows replaces the advisory windows; legal only while drafting.
	UpdateWindows(ctx context.Context, id uuid.UUID, nomination, voting Window) error
	// TransitionStatus is an atomic compare-and-set from expected to next.
	// A mismatch means someone else transitioned concurrently and returns
	// sentinel.ErrConflict; the caller decides how to surface it.
	TransitionStatus(ctx context.Context, id uuid.UUID, expected, next Status, now time.Time) error
}

// InMemoryStore backs unit tests and development. The mutex makes
// TransitionStatus an atomic check-and-swap, mirroring the conditional
// UPDATE of the Postgres implementation.
type InMemoryStore struct {
	mu        sync.RWMutex
	elections map[uuid.UUID]*Election
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{elections: make(map[uuid.UUID]*Election)}
}

func (s *InMemoryStore) Create(_ context.Context, e *Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elections[e.ID]; ok {
		return fmt.Errorf("election %s: %w", e.ID, sentinel.ErrConflict)
	}
	cp := *e
	s.elections[e.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.elections[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, fmt.Errorf("election %s: %w", id, sentinel.ErrNotFound)
}

func (s *InMemoryStore) UpdateWindows(_ context.Context, id uuid.UUID, nomination, voting Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elections[id]
	if !ok {
		return fmt.Errorf("election %s: %w", id, sentinel.ErrNotFound)
	}
	if e.Status != StatusDraft {
		return fmt.Errorf("windows are frozen after draft: %w", sentinel.ErrInvalidState)
	}
	e.NominationWindow = nomination
	e.VotingWindow = voting
	return nil
}

func (s *InMemoryStore) TransitionStatus(_ context.Context, id uuid.UUID, expected, next Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elections[id]
	if !ok {
		return fmt.Errorf("election %s: %w", id, sentinel.ErrNotFound)
	}
	if e.Status != expected {
		return fmt.Errorf("election %s is %s, expected %s: %w", id, e.Status, expected, sentinel.ErrConflict)
	}
	e.Status = next
	e.UpdatedAt = now
	return nil
}
