// Package adjudication is the human checkpoint between a submitted ballot
// and a counted one. A commission member compares the live photo captured
// at submission against the reference photo on the member's record and
// approves or rejects the vote. Decisions are final; a rejected vote does
// not return the voter's slot, the choice itself stays secret either way.
package adjudication

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"sabha/internal/audit"
	"sabha/internal/directory"
	"sabha/internal/election"
	"sabha/internal/platform/metrics"
	"sabha/internal/voting"
	dErrors "sabha/pkg/domain-errors"
	"sabha/pkg/platform/sentinel"
)

const minReasonLength = 10

// ElectionSource loads elections for authorization scope.
type ElectionSource interface {
	Get(ctx context.Context, id uuid.UUID) (*election.Election, error)
}

// Gate authorizes commission members for the election's level and unit.
type Gate interface {
	RequireCommission(ctx context.Context, memberID uuid.UUID, level directory.Level, orgUnitID uuid.UUID) error
}

// MemberSource resolves voters to their directory record, which carries the
// reference photo.
type MemberSource interface {
	FindMember(ctx context.Context, id uuid.UUID) (*directory.Member, error)
}

// AuditPublisher is the slice of the audit pipeline this service emits to.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// PendingVote pairs a queued vote with both photos an adjudicator needs.
// The candidate choice is deliberately absent; adjudication verifies the
// voter's identity, not their ballot.
type PendingVote struct {
	VoteID            uuid.UUID `json:"vote_id"`
	ElectionID        uuid.UUID `json:"election_id"`
	VoterID           uuid.UUID `json:"voter_id"`
	VoterName         string    `json:"voter_name"`
	SubmittedAt       time.Time `json:"submitted_at"`
	LivePhotoRef      string    `json:"live_photo_ref"`
	ReferencePhotoRef string    `json:"reference_photo_ref"`
	ClientIP          string    `json:"client_ip,omitempty"`
	ClientDevice      string    `json:"client_device,omitempty"`
}

// Service works the vote adjudication queue.
type Service struct {
	votes     voting.VoteStore
	elections ElectionSource
	members   MemberSource
	gate      Gate
	logger    *slog.Logger
	audits    AuditPublisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.audits = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(votes voting.VoteStore, elections ElectionSource, members MemberSource, gate Gate, opts ...Option) *Service {
	s := &Service{
		votes:     votes,
		elections: elections,
		members:   members,
		gate:      gate,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListPending returns the queue for an election, oldest submission first,
// with the photo pair attached to each entry.
func (s *Service) ListPending(ctx context.Context, actorID, electionID uuid.UUID) ([]PendingVote, error) {
	if _, err := s.authorize(ctx, actorID, electionID); err != nil {
		return nil, err
	}
	votes, err := s.votes.ListByStatus(ctx, electionID, voting.VotePending)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending votes")
	}

	out := make([]PendingVote, 0, len(votes))
	for _, v := range votes {
		entry := PendingVote{
			VoteID:       v.ID,
			ElectionID:   v.ElectionID,
			VoterID:      v.VoterID,
			SubmittedAt:  v.SubmittedAt,
			LivePhotoRef: v.LivePhotoRef,
			ClientIP:     v.ClientIP,
			ClientDevice: v.ClientDevice,
		}
		member, err := s.members.FindMember(ctx, v.VoterID)
		if err != nil {
			// A missing directory record should not hide the vote from the
			// queue; the adjudicator sees it without a reference photo.
			s.logger.WarnContext(ctx, "voter has no directory record", "voter_id", v.VoterID, "error", err)
		} else {
			entry.VoterName = member.Name
			entry.ReferencePhotoRef = member.ReferencePhotoRef
		}
		out = append(out, entry)
	}
	return out, nil
}

// Approve counts the vote. Only pending votes can be decided and the
// decision cannot be undone.
func (s *Service) Approve(ctx context.Context, actorID, voteID uuid.UUID) (*voting.Vote, error) {
	return s.decide(ctx, actorID, voteID, "", true)
}

// Reject excludes the vote from the tally with a recorded reason. The
// voter's one slot stays used.
func (s *Service) Reject(ctx context.Context, actorID, voteID uuid.UUID, reason string) (*voting.Vote, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < minReasonLength {
		return nil, dErrors.Newf(dErrors.CodeValidation, "rejection reason must be at least %d characters", minReasonLength)
	}
	return s.decide(ctx, actorID, voteID, reason, false)
}

func (s *Service) decide(ctx context.Context, actorID, voteID uuid.UUID, reason string, approve bool) (*voting.Vote, error) {
	vote, err := s.votes.FindByID(ctx, voteID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "vote not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load vote")
	}
	if _, err := s.authorize(ctx, actorID, vote.ElectionID); err != nil {
		return nil, err
	}
	if vote.Status != voting.VotePending {
		return nil, dErrors.Newf(dErrors.CodeInvalidStateTransition, "vote is already %s", vote.Status)
	}

	now := s.now()
	vote.AdjudicatedAt = &now
	vote.AdjudicatedBy = actorID
	event := audit.EventVoteApproved
	if approve {
		vote.Status = voting.VoteApproved
	} else {
		vote.Status = voting.VoteRejected
		vote.RejectReason = reason
		event = audit.EventVoteRejected
	}

	if err := s.votes.UpdateAdjudication(ctx, vote); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "vote was adjudicated concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record adjudication")
	}

	if s.metrics != nil {
		s.metrics.VotesAdjudicated.WithLabelValues(string(vote.Status)).Inc()
	}
	s.emitAudit(ctx, event, actorID, vote, reason)
	return vote, nil
}

// authorize loads the election and checks the actor holds a commission
// portfolio at its level.
func (s *Service) authorize(ctx context.Context, actorID, electionID uuid.UUID) (*election.Election, error) {
	e, err := s.elections.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireCommission(ctx, actorID, e.Level, e.OrgUnitID); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, actorID uuid.UUID, vote *voting.Vote, reason string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Emit(ctx, audit.Event{
		Action:     string(event),
		ActorID:    actorID,
		MemberID:   vote.VoterID,
		ElectionID: vote.ElectionID,
		Subject:    vote.ID.String(),
		Decision:   string(vote.Status),
		Reason:     reason,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "action", event, "error", err)
	}
}
