package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/organizational significance:
	// nomination decisions, adjudication decisions, result certification.
	// These require tamper-evident storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to election integrity
	// monitoring: OTP failures, authorization denials, duplicate-vote
	// attempts.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging:
	// OTP issuance, status transitions, eligibility recomputes.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category   EventCategory `json:"category"`
	Timestamp  time.Time     `json:"timestamp"`
	MemberID   uuid.UUID     `json:"member_id,omitempty"`
	ElectionID uuid.UUID     `json:"election_id,omitempty"`
	Action     string        `json:"action"`
	Subject    string        `json:"subject,omitempty"`
	Decision   string        `json:"decision,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
	// ActorID tracks who performed the action when different from MemberID,
	// e.g. a commissioner adjudicating a voter's ballot.
	ActorID uuid.UUID `json:"actor_id,omitempty"`
}

type AuditEvent string

const (
	// Portfolio events
	EventPortfolioAssigned AuditEvent = "portfolio_assigned"

	// Election lifecycle events
	EventElectionCreated      AuditEvent = "election_created"
	EventElectionTransitioned AuditEvent = "election_transitioned"

	// Nomination events
	EventNominationFiled    AuditEvent = "nomination_filed"
	EventNominationApproved AuditEvent = "nomination_approved"
	EventNominationRejected AuditEvent = "nomination_rejected"

	// Voting protocol events
	EventOTPIssued           AuditEvent = "otp_issued"
	EventOTPVerifyFailed     AuditEvent = "otp_verify_failed"
	EventVoteSubmitted       AuditEvent = "vote_submitted"
	EventDuplicateVote       AuditEvent = "duplicate_vote_attempt"
	EventVoteSessionMismatch AuditEvent = "vote_session_mismatch"
	EventVoteApproved        AuditEvent = "vote_approved"
	EventVoteRejected        AuditEvent = "vote_rejected"
	EventResultCalculated    AuditEvent = "results_calculated"
	EventResultCertified     AuditEvent = "result_certified"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventNominationApproved: CategoryCompliance,
	EventNominationRejected: CategoryCompliance,
	EventVoteApproved:       CategoryCompliance,
	EventVoteRejected:       CategoryCompliance,
	EventResultCalculated:   CategoryCompliance,
	EventResultCertified:    CategoryCompliance,

	EventOTPVerifyFailed:     CategorySecurity,
	EventDuplicateVote:       CategorySecurity,
	EventVoteSessionMismatch: CategorySecurity,

	EventPortfolioAssigned:    CategoryOperations,
	EventElectionCreated:      CategoryOperations,
	EventElectionTransitioned: CategoryOperations,
	EventNominationFiled:      CategoryOperations,
	EventOTPIssued:            CategoryOperations,
	EventVoteSubmitted:        CategoryOperations,
}

// CategoryOf returns the category for an event, defaulting to operations.
func CategoryOf(event AuditEvent) EventCategory {
	if cat, ok := eventCategories[event]; ok {
		return cat
	}
	return CategoryOperations
}
