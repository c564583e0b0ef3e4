package eligibility

import (
	"github.com/google/uuid"

	"sabha/internal/directory"
	"sabha/internal/portfolio"
)

// Scope identifies the election an eligibility computation runs for without
// importing the election package.
type Scope struct {
	ElectionID uuid.UUID
	Level      directory.Level
	OrgUnitID  uuid.UUID
}

// RoleHolding is the slice of a portfolio assignment the engine needs.
type RoleHolding struct {
	MemberID      uuid.UUID
	PortfolioCode string
	PortfolioType portfolio.Type
	Level         directory.Level
	OrgUnitID     uuid.UUID
	AuthorityRank int
}

// IsPresident reports whether the holding is the top executive seat of its
// unit (tehsil president, district president).
func (h RoleHolding) IsPresident() bool {
	return h.PortfolioType == portfolio.TypeExecutive && h.AuthorityRank == 1
}

// IsDelegate reports whether the holding is a nominated voting delegate.
func (h RoleHolding) IsDelegate() bool {
	return h.PortfolioCode == DelegateCode
}

// DelegateCode is the portfolio code the organization uses for nominated
// district delegates.
const DelegateCode = "DELEGATE"

// Snapshot is an explicit, immutable view of the organizational state an
// eligibility computation runs against. Building it is I/O; computing over
// it is pure, which keeps the level policies independently testable.
type Snapshot struct {
	// Members holds every member in computation scope, keyed by ID.
	Members map[uuid.UUID]directory.Member
	// Units holds the org units referenced by members and holdings.
	Units map[uuid.UUID]directory.OrgUnit
	// Holdings lists active portfolio assignments in scope.
	Holdings []RoleHolding
	// MembershipVersion is the directory version the snapshot was built at.
	MembershipVersion int64
}

// districtOf resolves the district a tehsil-scoped holding belongs to.
func (s *Snapshot) districtOf(unitID uuid.UUID) uuid.UUID {
	unit, ok := s.Units[unitID]
	if !ok {
		return uuid.Nil
	}
	switch unit.Level {
	case directory.LevelDistrict:
		return unit.ID
	case directory.LevelTehsil:
		return unit.ParentID
	}
	return uuid.Nil
}
