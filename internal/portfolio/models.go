package portfolio

import (
	"time"

	"github.com/google/uuid"

	"sabha/internal/directory"
	dErrors "sabha/pkg/domain-errors"
)

// Type classifies a portfolio by its organizational function. A member's
// active election_commission portfolio is mutually exclusive, at the same
// level, with the other three types; see Assignment conflict checking.
type Type string

const (
	TypeExecutive          Type = "executive"
	TypeAdministrative     Type = "administrative"
	TypeFinancial          Type = "financial"
	TypeElectionCommission Type = "election_commission"
)

func (t Type) Valid() bool {
	switch t {
	case TypeExecutive, TypeAdministrative, TypeFinancial, TypeElectionCommission:
		return true
	}
	return false
}

// Capability is a bitmask of granted operations on a resource type.
type Capability uint8

const (
	CapRead Capability = 1 << iota
	CapWrite
	CapExecute
	CapDelete
)

// Has reports whether every bit in want is granted.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// Portfolio is a named organizational role carrying scoped capability grants.
//
// Invariants:
//   - Code is non-empty and unique
//   - Level is one of the three tiers
//   - ConflictFlags lists flags this portfolio cannot share with another
//     active portfolio held by the same member at the same level
type Portfolio struct {
	ID            uuid.UUID
	Code          string
	Name          string
	Level         directory.Level
	Type          Type
	AuthorityRank int
	ParentID      uuid.UUID // zero when the portfolio has no parent
	ConflictFlags []string
}

// NewPortfolio validates invariants at construction.
func NewPortfolio(id uuid.UUID, code, name string, level directory.Level, typ Type, rank int) (*Portfolio, error) {
	if code == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "portfolio code must not be empty")
	}
	if !level.Valid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "portfolio level must be state, district or tehsil")
	}
	if !typ.Valid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown portfolio type")
	}
	p := &Portfolio{ID: id, Code: code, Name: name, Level: level, Type: typ, AuthorityRank: rank}
	// ConflictFlags name the portfolio types this role cannot coexist with at
	// the same level. Commission roles exclude the three operational types and
	// vice versa, so the assignment-time check is a single set intersection
	// rather than per-caller branching.
	if typ == TypeElectionCommission {
		p.ConflictFlags = []string{string(TypeExecutive), string(TypeAdministrative), string(TypeFinancial)}
	} else {
		p.ConflictFlags = []string{string(TypeElectionCommission)}
	}
	return p, nil
}

// ConflictsWith reports whether holding both p and other at the same level
// violates the separation-of-duties invariant.
func (p *Portfolio) ConflictsWith(other *Portfolio) bool {
	if p.Level != other.Level {
		return false
	}
	for _, flag := range p.ConflictFlags {
		if flag == string(other.Type) {
			return true
		}
	}
	return false
}

// Permission grants capability bits for a permission key and resource type,
// constrained to a level.
type Permission struct {
	PortfolioID   uuid.UUID
	PermissionKey string
	ResourceType  string
	Capability    Capability
	Level         directory.Level
}

// Assignment binds a member to a portfolio for some period. Only active
// assignments participate in authorization.
type Assignment struct {
	ID          uuid.UUID
	MemberID    uuid.UUID
	PortfolioID uuid.UUID
	OrgUnitID   uuid.UUID // the concrete unit the role is held in
	Active      bool
	AssignedAt  time.Time
	EndedAt     *time.Time
}
