package voting

import (
	"time"

	"github.com/google/uuid"
)

// OTPRecord is a pending one-time code for one voter in one election. The
// code itself is never stored; only its bcrypt hash. A record disappears on
// first successful verification or at expiry, whichever comes first.
type OTPRecord struct {
	ElectionID uuid.UUID `json:"election_id"`
	MemberID   uuid.UUID `json:"member_id"`
	CodeHash   string    `json:"code_hash"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Attempts   int       `json:"attempts"`
}

// Expired reports whether the code is past its window at t.
func (r OTPRecord) Expired(t time.Time) bool {
	return t.After(r.ExpiresAt)
}

// VerifiedSession is the short-lived proof that a voter passed OTP
// verification. Submitting a vote consumes it.
type VerifiedSession struct {
	Token      string    `json:"token"`
	ElectionID uuid.UUID `json:"election_id"`
	MemberID   uuid.UUID `json:"member_id"`
	VerifiedAt time.Time `json:"verified_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the session is stale at t.
func (s VerifiedSession) Expired(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// VoteStatus is the adjudication state of a submitted vote.
type VoteStatus string

const (
	VotePending  VoteStatus = "pending"
	VoteApproved VoteStatus = "approved"
	VoteRejected VoteStatus = "rejected"
)

// Vote is one ballot cast by one voter. Storage enforces that at most one
// row exists per (election, voter); the choice is immutable once written.
// Every vote starts pending and only counts after identity adjudication.
type Vote struct {
	ID            uuid.UUID
	ElectionID    uuid.UUID
	VoterID       uuid.UUID
	NominationID  uuid.UUID
	Position      string
	Status        VoteStatus
	LivePhotoRef  string
	SubmittedAt   time.Time
	AdjudicatedAt *time.Time
	AdjudicatedBy uuid.UUID
	RejectReason  string
	ClientIP      string
	ClientDevice  string
}
