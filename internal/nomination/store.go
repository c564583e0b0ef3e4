package nomination

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"sabha/pkg/platform/sentinel"
)

// Store persists nominations. Implementations enforce at most one
// nomination per (election, member, position).
type Store interface {
	Create(ctx context.Context, n *Nomination) error
	FindByID(ctx context.Context, id uuid.UUID) (*Nomination, error)
	Update(ctx context.Context, n *Nomination) error
	ListByElection(ctx context.Context, electionID uuid.UUID) ([]*Nomination, error)
	ListApproved(ctx context.Context, electionID uuid.UUID) ([]*Nomination, error)
}

type nominationKey struct {
	electionID uuid.UUID
	memberID   uuid.UUID
	position   string
}

// InMemoryStore is the map-backed Store used in tests and local runs.
type InMemoryStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*Nomination
	filed map[nominationKey]uuid.UUID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:  make(map[uuid.UUID]*Nomination),
		filed: make(map[nominationKey]uuid.UUID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, n *Nomination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nominationKey{n.ElectionID, n.MemberID, n.Position}
	if _, ok := s.filed[key]; ok {
		return fmt.Errorf("nomination already filed for this position: %w", sentinel.ErrConflict)
	}
	cp := *n
	s.byID[n.ID] = &cp
	s.filed[key] = n.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*Nomination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.byID[id]; ok {
		cp := *n
		return &cp, nil
	}
	return nil, fmt.Errorf("nomination %s: %w", id, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Update(_ context.Context, n *Nomination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[n.ID]; !ok {
		return fmt.Errorf("nomination %s: %w", n.ID, sentinel.ErrNotFound)
	}
	cp := *n
	s.byID[n.ID] = &cp
	return nil
}

func (s *InMemoryStore) ListByElection(_ context.Context, electionID uuid.UUID) ([]*Nomination, error) {
	return s.list(electionID, func(*Nomination) bool { return true }), nil
}

func (s *InMemoryStore) ListApproved(_ context.Context, electionID uuid.UUID) ([]*Nomination, error) {
	return s.list(electionID, func(n *Nomination) bool { return n.Status == StatusApproved }), nil
}

func (s *InMemoryStore) list(electionID uuid.UUID, keep func(*Nomination) bool) []*Nomination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Nomination
	for _, n := range s.byID {
		if n.ElectionID == electionID && keep(n) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FiledAt.Equal(out[j].FiledAt) {
			return out[i].FiledAt.Before(out[j].FiledAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
