package nomination

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "sabha/pkg/domain-errors"
)

// ApprovalStatus tracks the commission's decision on a filed nomination.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

const (
	minVisionLength = 50
	minReasonLength = 10
)

// Nomination is one member standing for one position in one election.
// At most one nomination exists per (election, member, position); the
// storage layer enforces the uniqueness.
type Nomination struct {
	ID              uuid.UUID
	ElectionID      uuid.UUID
	MemberID        uuid.UUID
	Position        string
	VisionStatement string
	Status          ApprovalStatus
	RejectReason    string
	FiledAt         time.Time
	DecidedAt       *time.Time
	DecidedBy       uuid.UUID
}

// NewNomination validates the filing and returns a pending nomination.
func NewNomination(id, electionID, memberID uuid.UUID, position, vision string, now time.Time) (*Nomination, error) {
	position = strings.TrimSpace(position)
	if position == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "position must not be empty")
	}
	vision = strings.TrimSpace(vision)
	if utf8.RuneCountInString(vision) < minVisionLength {
		return nil, dErrors.Newf(dErrors.CodeValidation, "vision statement must be at least %d characters", minVisionLength)
	}
	return &Nomination{
		ID:              id,
		ElectionID:      electionID,
		MemberID:        memberID,
		Position:        position,
		VisionStatement: vision,
		Status:          StatusPending,
		FiledAt:         now,
	}, nil
}

// Approve marks a pending nomination approved. Decisions are final.
func (n *Nomination) Approve(decidedBy uuid.UUID, now time.Time) error {
	if n.Status != StatusPending {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition, "nomination is already %s", n.Status)
	}
	n.Status = StatusApproved
	n.DecidedBy = decidedBy
	n.DecidedAt = &now
	return nil
}

// Reject marks a pending nomination rejected with a substantive reason.
func (n *Nomination) Reject(decidedBy uuid.UUID, reason string, now time.Time) error {
	if n.Status != StatusPending {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition, "nomination is already %s", n.Status)
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < minReasonLength {
		return dErrors.Newf(dErrors.CodeValidation, "rejection reason must be at least %d characters", minReasonLength)
	}
	n.Status = StatusRejected
	n.RejectReason = reason
	n.DecidedBy = decidedBy
	n.DecidedAt = &now
	return nil
}
