package election

import (
	"time"

	"github.com/google/uuid"

	"sabha/internal/directory"
	dErrors "sabha/pkg/domain-errors"
)

// Status is the election lifecycle phase. Transitions only move forward along
// the defined graph; cancelled is reachable from any non-terminal state.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusNominationsOpen   Status = "nominations_open"
	StatusNominationsClosed Status = "nominations_closed"
	StatusVotingOpen        Status = "voting_open"
	StatusVotingClosed      Status = "voting_closed"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
)

var validTransitions = map[Status][]Status{
	StatusDraft:             {StatusNominationsOpen, StatusCancelled},
	StatusNominationsOpen:   {StatusNominationsClosed, StatusCancelled},
	StatusNominationsClosed: {StatusVotingOpen, StatusCancelled},
	StatusVotingOpen:        {StatusVotingClosed, StatusCancelled},
	StatusVotingClosed:      {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether the move is an edge of the lifecycle graph.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions exist.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Window is an advisory time range; it is checked by the nomination and
// voting services at submission time, never enforced by a scheduler.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window. A zero window means
// the commission left it unrestricted.
func (w Window) Contains(t time.Time) bool {
	if w.Start.IsZero() && w.End.IsZero() {
		return true
	}
	return !t.Before(w.Start) && !t.After(w.End)
}

// Election is the aggregate the lifecycle manager governs.
//
// Invariants:
//   - Status moves only along validTransitions, via compare-and-set
//   - Level and OrgUnitID never change after creation
//   - Windows are advisory; services check them per call
type Election struct {
	ID               uuid.UUID
	Level            directory.Level
	OrgUnitID        uuid.UUID
	ElectionType     string
	Status           Status
	NominationWindow Window
	VotingWindow     Window
	CreatedBy        uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewElection validates invariants at construction. Elections start in draft.
func NewElection(id uuid.UUID, level directory.Level, orgUnitID uuid.UUID, electionType string, createdBy uuid.UUID, now time.Time) (*Election, error) {
	if !level.Valid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "election level must be state, district or tehsil")
	}
	if orgUnitID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "election must target an org unit")
	}
	if electionType == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "election type must not be empty")
	}
	return &Election{
		ID:           id,
		Level:        level,
		OrgUnitID:    orgUnitID,
		ElectionType: electionType,
		Status:       StatusDraft,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
