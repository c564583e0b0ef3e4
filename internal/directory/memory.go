package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"sabha/pkg/platform/sentinel"
)

// InMemoryDirectory backs the membership port for tests and development.
type InMemoryDirectory struct {
	mu      sync.RWMutex
	members map[uuid.UUID]Member
	units   map[uuid.UUID]OrgUnit
	version int64
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		members: make(map[uuid.UUID]Member),
		units:   make(map[uuid.UUID]OrgUnit),
		version: 1,
	}
}

// PutMember adds or replaces a member and bumps the membership version.
func (d *InMemoryDirectory) PutMember(m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.ID] = m
	d.version++
}

// PutOrgUnit adds or replaces an org unit.
func (d *InMemoryDirectory) PutOrgUnit(u OrgUnit) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.units[u.ID] = u
}

func (d *InMemoryDirectory) FindMember(_ context.Context, id uuid.UUID) (*Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if m, ok := d.members[id]; ok {
		return &m, nil
	}
	return nil, fmt.Errorf("member %s: %w", id, sentinel.ErrNotFound)
}

func (d *InMemoryDirectory) FindOrgUnit(_ context.Context, id uuid.UUID) (*OrgUnit, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if u, ok := d.units[id]; ok {
		return &u, nil
	}
	return nil, fmt.Errorf("org unit %s: %w", id, sentinel.ErrNotFound)
}

func (d *InMemoryDirectory) ListMembersByUnit(_ context.Context, unitID uuid.UUID) ([]Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	unit, ok := d.units[unitID]
	if !ok {
		return nil, fmt.Errorf("org unit %s: %w", unitID, sentinel.ErrNotFound)
	}
	var out []Member
	for _, m := range d.members {
		if m.Active && m.UnitID(unit.Level) == unitID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (d *InMemoryDirectory) ListChildUnits(_ context.Context, parentID uuid.UUID) ([]OrgUnit, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []OrgUnit
	for _, u := range d.units {
		if u.ParentID == parentID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *InMemoryDirectory) MembershipVersion(_ context.Context) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version, nil
}
