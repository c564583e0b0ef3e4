package eligibility

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"sabha/pkg/platform/sentinel"
)

// Criteria are election-specific include/exclude rules set by the commission,
// layered on top of the default level policy. The version increases on every
// change so cached eligibility sets can be keyed and invalidated.
type Criteria struct {
	ElectionID     uuid.UUID
	Version        int
	IncludeMembers []uuid.UUID
	ExcludeMembers []uuid.UUID
	// ApplyToCandidates narrows the candidate set with the same rules when
	// true; voter rules always apply.
	ApplyToCandidates bool
}

// Apply layers the rules over a default-eligible set.
func (c *Criteria) Apply(base map[uuid.UUID]bool) map[uuid.UUID]bool {
	if c == nil {
		return base
	}
	for _, id := range c.IncludeMembers {
		base[id] = true
	}
	for _, id := range c.ExcludeMembers {
		delete(base, id)
	}
	return base
}

// CriteriaStore persists per-election criteria.
type CriteriaStore interface {
	// Save stores the criteria, assigning the next version.
	Save(ctx context.Context, criteria *Criteria) error
	// Find returns the current criteria for an election; sentinel.ErrNotFound
	// when the commission never set any.
	Find(ctx context.Context, electionID uuid.UUID) (*Criteria, error)
}

// InMemoryCriteriaStore backs unit tests and development.
type InMemoryCriteriaStore struct {
	mu       sync.RWMutex
	criteria map[uuid.UUID]*Criteria
}

func NewInMemoryCriteriaStore() *InMemoryCriteriaStore {
	return &InMemoryCriteriaStore{criteria: make(map[uuid.UUID]*Criteria)}
}

func (s *InMemoryCriteriaStore) Save(_ context.Context, criteria *Criteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.criteria[criteria.ElectionID]; ok {
		criteria.Version = existing.Version + 1
	} else {
		criteria.Version = 1
	}
	cp := *criteria
	s.criteria[criteria.ElectionID] = &cp
	return nil
}

func (s *InMemoryCriteriaStore) Find(_ context.Context, electionID uuid.UUID) (*Criteria, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.criteria[electionID]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, fmt.Errorf("criteria for election %s: %w", electionID, sentinel.ErrNotFound)
}
