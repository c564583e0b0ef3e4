package eligibility

import (
	"sort"

	"github.com/google/uuid"

	"sabha/internal/directory"
)

// Engine computes voter and candidate eligibility as pure functions over an
// explicit snapshot. No I/O happens here; the service layer builds snapshots
// and caches results.
type Engine struct{}

func NewEngine() Engine {
	return Engine{}
}

// ComputeVoters returns the sorted set of members who may vote in the scoped
// election. Policy by level:
//   - tehsil: all active members attached to that tehsil
//   - district: tehsil presidents and nominated delegates within the district
//   - state: tehsil presidents, district presidents, and other portfolio
//     holders statewide
//
// Election-specific criteria layer on top of the default rule.
func (Engine) ComputeVoters(snapshot *Snapshot, scope Scope, criteria *Criteria) []uuid.UUID {
	base := defaultEligible(snapshot, scope)
	return sortedIDs(criteria.Apply(base))
}

// ComputeCandidates returns the sorted set of members who may stand in the
// scoped election. The default candidate set equals the voter set at every
// level; criteria narrow it only when the commission marked them as applying
// to candidates.
func (Engine) ComputeCandidates(snapshot *Snapshot, scope Scope, criteria *Criteria) []uuid.UUID {
	base := defaultEligible(snapshot, scope)
	if criteria != nil && criteria.ApplyToCandidates {
		base = criteria.Apply(base)
	}
	return sortedIDs(base)
}

func defaultEligible(snapshot *Snapshot, scope Scope) map[uuid.UUID]bool {
	eligible := make(map[uuid.UUID]bool)
	switch scope.Level {
	case directory.LevelTehsil:
		for id, m := range snapshot.Members {
			if m.Active && m.TehsilID == scope.OrgUnitID {
				eligible[id] = true
			}
		}
	case directory.LevelDistrict:
		for _, h := range snapshot.Holdings {
			inDistrict := snapshot.districtOf(h.OrgUnitID) == scope.OrgUnitID
			if !inDistrict {
				continue
			}
			if (h.IsPresident() && h.Level == directory.LevelTehsil) || h.IsDelegate() {
				eligible[h.MemberID] = true
			}
		}
	case directory.LevelState:
		for _, h := range snapshot.Holdings {
			presidentSeat := h.IsPresident() && (h.Level == directory.LevelTehsil || h.Level == directory.LevelDistrict)
			if presidentSeat || h.Level == directory.LevelState || h.IsDelegate() {
				eligible[h.MemberID] = true
			}
		}
	}
	// Only members present and active in the snapshot count; a holding whose
	// member left the organization does not grant eligibility.
	for id := range eligible {
		if m, ok := snapshot.Members[id]; !ok || !m.Active {
			delete(eligible, id)
		}
	}
	return eligible
}

func sortedIDs(set map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
