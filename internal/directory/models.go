package directory

import (
	"context"

	"github.com/google/uuid"
)

// Level is the organizational tier an org unit or election lives at.
type Level string

const (
	LevelState    Level = "state"
	LevelDistrict Level = "district"
	LevelTehsil   Level = "tehsil"
)

// Valid reports whether the level is one of the three tiers.
func (l Level) Valid() bool {
	switch l {
	case LevelState, LevelDistrict, LevelTehsil:
		return true
	}
	return false
}

// OrgUnit is a node in the state → district → tehsil hierarchy.
// Reference data owned by the membership system; read-only here.
type OrgUnit struct {
	ID       uuid.UUID
	Level    Level
	ParentID uuid.UUID // zero for state-level units
	Name     string
}

// Member is the slice of a member profile the election subsystem needs.
type Member struct {
	ID                uuid.UUID
	Name              string
	TehsilID          uuid.UUID
	DistrictID        uuid.UUID
	StateID           uuid.UUID
	Active            bool
	ReferencePhotoRef string // on-file verified photo, used for adjudication
}

// UnitID returns the member's org unit at the given level.
func (m Member) UnitID(level Level) uuid.UUID {
	switch level {
	case LevelState:
		return m.StateID
	case LevelDistrict:
		return m.DistrictID
	default:
		return m.TehsilID
	}
}

// Reader is the port to the membership system. Implemented externally;
// the in-memory version in this package serves tests and development.
type Reader interface {
	FindMember(ctx context.Context, id uuid.UUID) (*Member, error)
	FindOrgUnit(ctx context.Context, id uuid.UUID) (*OrgUnit, error)
	// ListMembersByUnit returns active members attached (at the unit's level)
	// to the given org unit.
	ListMembersByUnit(ctx context.Context, unitID uuid.UUID) ([]Member, error)
	// ListChildUnits returns the org units directly under the given unit
	// (districts of a state, tehsils of a district).
	ListChildUnits(ctx context.Context, parentID uuid.UUID) ([]OrgUnit, error)
	// MembershipVersion increases whenever membership data changes, letting
	// eligibility caches detect staleness.
	MembershipVersion(ctx context.Context) (int64, error)
}
