package portfolio

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"sabha/internal/directory"
	"sabha/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound (wrapped) when the requested entity does not exist
// - Return sentinel.ErrConflict (wrapped) when a uniqueness condition fails
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

// Store is the persistence boundary for portfolios, permissions and
// assignments. Authorization resolution is read-heavy; administration of the
// records is rare and out of the hot path.
type Store interface {
	SavePortfolio(ctx context.Context, p *Portfolio) error
	FindPortfolio(ctx context.Context, id uuid.UUID) (*Portfolio, error)
	SavePermission(ctx context.Context, perm *Permission) error
	// FindGrant returns the highest-capability permission matching the key,
	// resource type and level across the given portfolios.
	FindGrant(ctx context.Context, portfolioIDs []uuid.UUID, permissionKey, resourceType string, level directory.Level) (*Permission, error)
	CreateAssignment(ctx context.Context, a *Assignment) error
	// ActiveAssignments returns a member's active assignments with their
	// portfolios resolved.
	ActiveAssignments(ctx context.Context, memberID uuid.UUID) ([]AssignmentWithPortfolio, error)
	// ActiveHolders lists members holding an active assignment of the given
	// portfolio type at the given level, optionally scoped to one org unit.
	ActiveHolders(ctx context.Context, typ Type, level directory.Level, orgUnitID uuid.UUID) ([]Assignment, error)
	// ListActiveAssignments returns every active assignment with its
	// portfolio resolved; the eligibility snapshot builder consumes this.
	ListActiveAssignments(ctx context.Context) ([]AssignmentWithPortfolio, error)
	EndAssignment(ctx context.Context, id uuid.UUID) error
}

// AssignmentWithPortfolio pairs an assignment with its resolved portfolio so
// the gate avoids N+1 lookups.
type AssignmentWithPortfolio struct {
	Assignment Assignment
	Portfolio  Portfolio
}

// InMemoryStore backs unit tests and development.
type InMemoryStore struct {
	mu          sync.RWMutex
	portfolios  map[uuid.UUID]*Portfolio
	permissions []*Permission
	assignments map[uuid.UUID]*Assignment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		portfolios:  make(map[uuid.UUID]*Portfolio),
		assignments: make(map[uuid.UUID]*Assignment),
	}
}

func (s *InMemoryStore) SavePortfolio(_ context.Context, p *Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.portfolios {
		if existing.Code == p.Code && existing.ID != p.ID {
			return fmt.Errorf("portfolio code %q: %w", p.Code, sentinel.ErrConflict)
		}
	}
	cp := *p
	s.portfolios[p.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindPortfolio(_ context.Context, id uuid.UUID) (*Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.portfolios[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, fmt.Errorf("portfolio %s: %w", id, sentinel.ErrNotFound)
}

func (s *InMemoryStore) SavePermission(_ context.Context, perm *Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *perm
	s.permissions = append(s.permissions, &cp)
	return nil
}

func (s *InMemoryStore) FindGrant(_ context.Context, portfolioIDs []uuid.UUID, permissionKey, resourceType string, level directory.Level) (*Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[uuid.UUID]bool, len(portfolioIDs))
	for _, id := range portfolioIDs {
		ids[id] = true
	}
	var best *Permission
	for _, perm := range s.permissions {
		if !ids[perm.PortfolioID] || perm.PermissionKey != permissionKey || perm.ResourceType != resourceType || perm.Level != level {
			continue
		}
		if best == nil || perm.Capability > best.Capability {
			best = perm
		}
	}
	if best == nil {
		return nil, fmt.Errorf("grant %s/%s at %s: %w", permissionKey, resourceType, level, sentinel.ErrNotFound)
	}
	cp := *best
	return &cp, nil
}

func (s *InMemoryStore) CreateAssignment(_ context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.assignments[a.ID] = &cp
	return nil
}

func (s *InMemoryStore) ActiveAssignments(_ context.Context, memberID uuid.UUID) ([]AssignmentWithPortfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AssignmentWithPortfolio
	for _, a := range s.assignments {
		if a.MemberID != memberID || !a.Active {
			continue
		}
		p, ok := s.portfolios[a.PortfolioID]
		if !ok {
			return nil, fmt.Errorf("portfolio %s for assignment %s: %w", a.PortfolioID, a.ID, sentinel.ErrNotFound)
		}
		out = append(out, AssignmentWithPortfolio{Assignment: *a, Portfolio: *p})
	}
	return out, nil
}

func (s *InMemoryStore) ActiveHolders(_ context.Context, typ Type, level directory.Level, orgUnitID uuid.UUID) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Assignment
	for _, a := range s.assignments {
		if !a.Active {
			continue
		}
		p, ok := s.portfolios[a.PortfolioID]
		if !ok || p.Type != typ || p.Level != level {
			continue
		}
		if orgUnitID != uuid.Nil && a.OrgUnitID != orgUnitID {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (s *InMemoryStore) ListActiveAssignments(_ context.Context) ([]AssignmentWithPortfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AssignmentWithPortfolio
	for _, a := range s.assignments {
		if !a.Active {
			continue
		}
		p, ok := s.portfolios[a.PortfolioID]
		if !ok {
			return nil, fmt.Errorf("portfolio %s for assignment %s: %w", a.PortfolioID, a.ID, sentinel.ErrNotFound)
		}
		out = append(out, AssignmentWithPortfolio{Assignment: *a, Portfolio: *p})
	}
	return out, nil
}

func (s *InMemoryStore) EndAssignment(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return fmt.Errorf("assignment %s: %w", id, sentinel.ErrNotFound)
	}
	a.Active = false
	return nil
}
