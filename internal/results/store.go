package results

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sabha/pkg/platform/sentinel"
)

// Store persists one result per election. Save refuses to overwrite a
// certified result; Certify flips the flag exactly once.
type Store interface {
	Save(ctx context.Context, r *Result) error
	FindByElection(ctx context.Context, electionID uuid.UUID) (*Result, error)
	Certify(ctx context.Context, electionID, certifiedBy uuid.UUID, at time.Time) error
}

// InMemoryStore is the map-backed Store.
type InMemoryStore struct {
	mu      sync.Mutex
	results map[uuid.UUID]*Result
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{results: make(map[uuid.UUID]*Result)}
}

func (s *InMemoryStore) Save(_ context.Context, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.results[r.ElectionID]; ok && existing.IsCertified {
		return fmt.Errorf("result is certified: %w", sentinel.ErrInvalidState)
	}
	cp := cloneResult(r)
	s.results[r.ElectionID] = cp
	return nil
}

func (s *InMemoryStore) FindByElection(_ context.Context, electionID uuid.UUID) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.results[electionID]; ok {
		return cloneResult(r), nil
	}
	return nil, fmt.Errorf("result for election %s: %w", electionID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Certify(_ context.Context, electionID, certifiedBy uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[electionID]
	if !ok {
		return fmt.Errorf("result for election %s: %w", electionID, sentinel.ErrNotFound)
	}
	if r.IsCertified {
		return fmt.Errorf("result is certified: %w", sentinel.ErrConflict)
	}
	r.IsCertified = true
	r.CertifiedBy = certifiedBy
	r.CertifiedAt = &at
	return nil
}

func cloneResult(r *Result) *Result {
	cp := *r
	cp.Positions = make([]PositionResult, len(r.Positions))
	for i, p := range r.Positions {
		cp.Positions[i] = p
		cp.Positions[i].Tallies = append([]CandidateTally(nil), p.Tallies...)
	}
	if r.CertifiedAt != nil {
		t := *r.CertifiedAt
		cp.CertifiedAt = &t
	}
	return &cp
}
