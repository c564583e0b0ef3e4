package voting

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"sabha/pkg/platform/sentinel"
)

// VoteStore persists ballots. Implementations enforce at most one vote per
// (election, voter): a second insert for the same pair fails with
// sentinel.ErrConflict no matter how the calls interleave.
type VoteStore interface {
	Create(ctx context.Context, v *Vote) error
	FindByID(ctx context.Context, id uuid.UUID) (*Vote, error)
	FindByVoter(ctx context.Context, electionID, voterID uuid.UUID) (*Vote, error)
	UpdateAdjudication(ctx context.Context, v *Vote) error
	ListByStatus(ctx context.Context, electionID uuid.UUID, status VoteStatus) ([]*Vote, error)
}

type voteKey struct {
	electionID uuid.UUID
	voterID    uuid.UUID
}

// InMemoryVoteStore is the map-backed VoteStore.
type InMemoryVoteStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*Vote
	byVoter map[voteKey]uuid.UUID
}

func NewInMemoryVoteStore() *InMemoryVoteStore {
	return &InMemoryVoteStore{
		byID:    make(map[uuid.UUID]*Vote),
		byVoter: make(map[voteKey]uuid.UUID),
	}
}

func (s *InMemoryVoteStore) Create(_ context.Context, v *Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{v.ElectionID, v.VoterID}
	if _, ok := s.byVoter[key]; ok {
		return fmt.Errorf("vote already recorded for this voter: %w", sentinel.ErrConflict)
	}
	cp := *v
	s.byID[v.ID] = &cp
	s.byVoter[key] = v.ID
	return nil
}

func (s *InMemoryVoteStore) FindByID(_ context.Context, id uuid.UUID) (*Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.byID[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, fmt.Errorf("vote %s: %w", id, sentinel.ErrNotFound)
}

func (s *InMemoryVoteStore) FindByVoter(_ context.Context, electionID, voterID uuid.UUID) (*Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byVoter[voteKey{electionID, voterID}]; ok {
		cp := *s.byID[id]
		return &cp, nil
	}
	return nil, fmt.Errorf("vote for voter %s: %w", voterID, sentinel.ErrNotFound)
}

func (s *InMemoryVoteStore) UpdateAdjudication(_ context.Context, v *Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[v.ID]; !ok {
		return fmt.Errorf("vote %s: %w", v.ID, sentinel.ErrNotFound)
	}
	cp := *v
	s.byID[v.ID] = &cp
	return nil
}

func (s *InMemoryVoteStore) ListByStatus(_ context.Context, electionID uuid.UUID, status VoteStatus) ([]*Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Vote
	for _, v := range s.byID {
		if v.ElectionID == electionID && v.Status == status {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
