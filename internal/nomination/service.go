package nomination

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sabha/internal/audit"
	"sabha/internal/directory"
	"sabha/internal/election"
	"sabha/internal/eligibility"
	"sabha/internal/platform/metrics"
	dErrors "sabha/pkg/domain-errors"
	"sabha/pkg/platform/sentinel"
)

// ElectionSource loads elections for phase and window checks.
type ElectionSource interface {
	Get(ctx context.Context, id uuid.UUID) (*election.Election, error)
}

// CandidateChecker answers whether a member may stand in the election scope.
type CandidateChecker interface {
	IsEligibleCandidate(ctx context.Context, scope eligibility.Scope, memberID uuid.UUID) (bool, error)
}

// Gate authorizes commission decisions on nominations.
type Gate interface {
	RequireCommission(ctx context.Context, memberID uuid.UUID, level directory.Level, orgUnitID uuid.UUID) error
}

// AuditPublisher is the slice of the audit pipeline this service emits to.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service files nominations and records commission decisions on them.
type Service struct {
	store     Store
	elections ElectionSource
	checker   CandidateChecker
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

func New(store Store, elections ElectionSource, checker CandidateChecker, gate Gate, opts ...Option) *Service {
	s := &Service{
		store:     store,
		elections: elections,
		checker:   checker,
		gate:      gate,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// File submits a candidacy. The election must be accepting nominations,
// the filing must fall inside the nomination window, and the member must
// be on the candidate roll. Re-filing the same position is a conflict.
func (s *Service) File(ctx context.Context, memberID, electionID uuid.UUID, position, vision string) (*Nomination, error) {
	e, err := s.elections.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if e.Status != election.StatusNominationsOpen {
		return nil, dErrors.Newf(dErrors.CodeInvalidStateTransition, "election is %s, nominations are not open", e.Status)
	}
	now := s.now()
	if !e.NominationWindow.Contains(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "filing is outside the nomination window")
	}

	eligible, err := s.checker.IsEligibleCandidate(ctx, eligibility.Scope{ElectionID: e.ID, Level: e.Level, OrgUnitID: e.OrgUnitID}, memberID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, dErrors.New(dErrors.CodeNotEligible, "member is not eligible to stand in this election")
	}

	n, err := NewNomination(uuid.New(), electionID, memberID, position, vision, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, n); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a nomination for this position is already filed")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to file nomination")
	}

	if s.metrics != nil {
		s.metrics.NominationsFiled.Inc()
	}
	s.emitAudit(ctx, audit.EventNominationFiled, memberID, n, "")
	return n, nil
}

// Approve accepts a pending nomination onto the ballot.
func (s *Service) Approve(ctx context.Context, actorID, nominationID uuid.UUID) (*Nomination, error) {
	return s.decide(ctx, actorID, nominationID, "", true)
}

// Reject turns down a pending nomination with a reason the candidate can read.
func (s *Service) Reject(ctx context.Context, actorID, nominationID uuid.UUID, reason string) (*Nomination, error) {
	return s.decide(ctx, actorID, nominationID, reason, false)
}

func (s *Service) decide(ctx context.Context, actorID, nominationID uuid.UUID, reason string, approve bool) (*Nomination, error) {
	n, err := s.Get(ctx, nominationID)
	if err != nil {
		return nil, err
	}
	e, err := s.elections.Get(ctx, n.ElectionID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireCommission(ctx, actorID, e.Level, e.OrgUnitID); err != nil {
		return nil, err
	}
	// Decisions land between filing and the ballot being fixed.
	if e.Status != election.StatusNominationsOpen && e.Status != election.StatusNominationsClosed {
		return nil, dErrors.Newf(dErrors.CodeInvalidStateTransition, "election is %s, nomination decisions are closed", e.Status)
	}

	now := s.now()
	if approve {
		err = n.Approve(actorID, now)
	} else {
		err = n.Reject(actorID, reason, now)
	}
	if err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, n); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record nomination decision")
	}

	event := audit.EventNominationApproved
	decision := string(StatusApproved)
	if !approve {
		event = audit.EventNominationRejected
		decision = string(StatusRejected)
	}
	if s.metrics != nil {
		s.metrics.NominationDecided.WithLabelValues(decision).Inc()
	}
	s.emitAudit(ctx, event, actorID, n, reason)
	return n, nil
}

// Get loads one nomination.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Nomination, error) {
	n, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "nomination not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load nomination")
	}
	return n, nil
}

// List returns every nomination filed for the election, oldest first.
func (s *Service) List(ctx context.Context, electionID uuid.UUID) ([]*Nomination, error) {
	out, err := s.store.ListByElection(ctx, electionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list nominations")
	}
	return out, nil
}

// Ballot returns the approved candidates, ordered by filing time. The order
// also serves as the tie-break when two candidates draw level on votes.
func (s *Service) Ballot(ctx context.Context, electionID uuid.UUID) ([]*Nomination, error) {
	out, err := s.store.ListApproved(ctx, electionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list approved nominations")
	}
	return out, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, actorID uuid.UUID, n *Nomination, reason string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Emit(ctx, audit.Event{
		Action:     string(event),
		ActorID:    actorID,
		MemberID:   n.MemberID,
		ElectionID: n.ElectionID,
		Subject:    n.Position,
		Decision:   string(n.Status),
		Reason:     reason,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "action", event, "error", err)
	}
}
