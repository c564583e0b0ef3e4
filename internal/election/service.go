package election

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sabha/internal/audit"
	"sabha/internal/directory"
	"sabha/internal/eligibility"
	"sabha/internal/platform/metrics"
	dErrors "sabha/pkg/domain-errors"
	"sabha/pkg/platform/sentinel"
)

// Gate is the authorization slice the lifecycle manager needs. Every
// transition requires an election-commission portfolio at the election's
// level.
type Gate interface {
	RequireCommission(ctx context.Context, memberID uuid.UUID, level directory.Level, orgUnitID uuid.UUID) error
}

// Recomputer refreshes eligibility sets; invoked before voting opens so
// membership changes after draft creation are reflected.
type Recomputer interface {
	Recompute(ctx context.Context, scope eligibility.Scope) error
}

// AuditPublisher is the slice of the audit pipeline this service emits to.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Action names an explicit administrative transition.
type Action string

const (
	ActionOpenNominations  Action = "open_nominations"
	ActionCloseNominations Action = "close_nominations"
	ActionOpenVoting       Action = "open_voting"
	ActionCloseVoting      Action = "close_voting"
	ActionComplete         Action = "complete"
	ActionCancel           Action = "cancel"
)

// Service is the election lifecycle manager. It owns the status state
// machine and gates which phase-scoped operations are currently legal.
type Service struct {
	store      Store
	gate       Gate
	recomputer Recomputer
	logger     *slog.Logger
	audits     AuditPublisher
	metrics    *metrics.Metrics
	now        func() time.Time
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

// WithClock injects time for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, gate Gate, recomputer Recomputer, opts ...Option) *Service {
	s := &Service{
		store:      store,
		gate:       gate,
		recomputer: recomputer,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a draft election. Only commission members at the target
// level may create one.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, level directory.Level, orgUnitID uuid.UUID, electionType string, nomination, voting Window) (*Election, error) {
	if err := s.gate.RequireCommission(ctx, actorID, level, orgUnitID); err != nil {
		return nil, err
	}
	e, err := NewElection(uuid.New(), level, orgUnitID, electionType, actorID, s.now())
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	e.NominationWindow = nomination
	e.VotingWindow = voting
	if err := s.store.Create(ctx, e); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create election")
	}
	s.emitAudit(ctx, audit.EventElectionCreated, actorID, e.ID, string(e.Level), "")
	return e, nil
}

// Get loads one election.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Election, error) {
	e, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "election not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load election")
	}
	return e, nil
}

// SetWindows replaces the advisory nomination and voting windows. Only a
// draft election may be rescheduled.
func (s *Service) SetWindows(ctx context.Context, actorID, electionID uuid.UUID, nomination, voting Window) (*Election, error) {
	e, err := s.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireCommission(ctx, actorID, e.Level, e.OrgUnitID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateWindows(ctx, electionID, nomination, voting); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeInvalidStateTransition, "windows can only change while the election is draft")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "election not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update election windows")
	}
	e.NominationWindow = nomination
	e.VotingWindow = voting
	return e, nil
}

// OpenNominations moves draft → nominations_open.
func (s *Service) OpenNominations(ctx context.Context, actorID, electionID uuid.UUID) (*Election, error) {
	return s.transition(ctx, actorID, electionID, ActionOpenNominations, StatusDraft, StatusNominationsOpen)
}

// CloseNominations moves nominations_open → nominations_closed.
func (s *Service) CloseNominations(ctx context.Context, actorID, electionID uuid.UUID) (*Election, error) {
	return s.transition(ctx, actorID, electionID, ActionCloseNominations, StatusNominationsOpen, StatusNominationsClosed)
}

// OpenVoting moves nominations_closed → voting_open. Eligibility is
// recomputed first so the voter roll reflects membership changes since
// draft; stale sets are acceptable before voting, never during.
func (s *Service) OpenVoting(ctx context.Context, actorID, electionID uuid.UUID) (*Election, error) {
	e, err := s.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireCommission(ctx, actorID, e.Level, e.OrgUnitID); err != nil {
		return nil, err
	}
	if err := s.recomputer.Recompute(ctx, eligibility.Scope{ElectionID: e.ID, Level: e.Level, OrgUnitID: e.OrgUnitID}); err != nil {
		return nil, err
	}
	return s.transition(ctx, actorID, electionID, ActionOpenVoting, StatusNominationsClosed, StatusVotingOpen)
}

// CloseVoting moves voting_open → voting_closed.
func (s *Service) CloseVoting(ctx context.Context, actorID, electionID uuid.UUID) (*Election, error) {
	return s.transition(ctx, actorID, electionID, ActionCloseVoting, StatusVotingOpen, StatusVotingClosed)
}

// Complete moves voting_closed → completed.
func (s *Service) Complete(ctx context.Context, actorID, electionID uuid.UUID) (*Election, error) {
	return s.transition(ctx, actorID, electionID, ActionComplete, StatusVotingClosed, StatusCompleted)
}

// Cancel moves any non-terminal status → cancelled.
func (s *Service) Cancel(ctx context.Context, actorID, electionID uuid.UUID) (*Election, error) {
	e, err := s.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireCommission(ctx, actorID, e.Level, e.OrgUnitID); err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		s.recordTransition(ActionCancel, "rejected")
		return nil, dErrors.Newf(dErrors.CodeInvalidStateTransition, "cannot cancel a %s election", e.Status)
	}
	if err := s.cas(ctx, e, ActionCancel, e.Status, StatusCancelled); err != nil {
		return nil, err
	}
	s.emitAudit(ctx, audit.EventElectionTransitioned, actorID, e.ID, string(StatusCancelled), string(ActionCancel))
	e.Status = StatusCancelled
	return e, nil
}

// transition implements the shared load → authorize → validate → CAS path.
func (s *Service) transition(ctx context.Context, actorID, electionID uuid.UUID, action Action, expected, next Status) (*Election, error) {
	e, err := s.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireCommission(ctx, actorID, e.Level, e.OrgUnitID); err != nil {
		return nil, err
	}
	if e.Status != expected || !expected.CanTransitionTo(next) {
		s.recordTransition(action, "rejected")
		return nil, dErrors.Newf(dErrors.CodeInvalidStateTransition,
			"%s requires status %s, election is %s", action, expected, e.Status)
	}
	if err := s.cas(ctx, e, action, expected, next); err != nil {
		return nil, err
	}
	s.emitAudit(ctx, audit.EventElectionTransitioned, actorID, e.ID, string(next), string(action))
	e.Status = next
	e.UpdatedAt = s.now()
	return e, nil
}

func (s *Service) cas(ctx context.Context, e *Election, action Action, expected, next Status) error {
	if err := s.store.TransitionStatus(ctx, e.ID, expected, next, s.now()); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.recordTransition(action, "conflict")
			return dErrors.Wrap(err, dErrors.CodeConflict, "election status changed concurrently")
		}
		s.recordTransition(action, "error")
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transition election status")
	}
	s.recordTransition(action, "ok")
	return nil
}

func (s *Service) recordTransition(action Action, outcome string) {
	if s.metrics != nil {
		s.metrics.StatusTransitions.WithLabelValues(string(action), outcome).Inc()
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, actorID, electionID uuid.UUID, subject, decision string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Emit(ctx, audit.Event{
		Action:     string(event),
		ActorID:    actorID,
		ElectionID: electionID,
		Subject:    subject,
		Decision:   decision,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "action", event, "error", err)
	}
}
