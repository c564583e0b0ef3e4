package results

import (
	"time"

	"github.com/google/uuid"
)

// CandidateTally is one candidate's line in a position result.
type CandidateTally struct {
	NominationID uuid.UUID `json:"nomination_id"`
	MemberID     uuid.UUID `json:"member_id"`
	VoteCount    int       `json:"vote_count"`
	Percentage   float64   `json:"percentage"`
	Winner       bool      `json:"winner"`
}

// PositionResult is the outcome for one contested position. Only approved
// votes count; pending and rejected ballots never reach a tally.
type PositionResult struct {
	Position       string           `json:"position"`
	EligibleVoters int              `json:"eligible_voters"`
	BallotsCounted int              `json:"ballots_counted"`
	Tallies        []CandidateTally `json:"tallies"`
}

// Result is the full outcome of an election. It stays recalculable until
// certification, which is one way: a certified result never changes and is
// never recalculated.
type Result struct {
	ElectionID   uuid.UUID
	Positions    []PositionResult
	CalculatedAt time.Time
	CalculatedBy uuid.UUID
	IsCertified  bool
	CertifiedAt  *time.Time
	CertifiedBy  uuid.UUID
}
