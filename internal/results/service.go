// Package results turns adjudicated ballots into position tallies and
// certifies the outcome. Only approved votes count. Until certification a
// tally can be recalculated any number of times; certification is one way.
package results

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sabha/internal/audit"
	"sabha/internal/directory"
	"sabha/internal/election"
	"sabha/internal/eligibility"
	"sabha/internal/nomination"
	"sabha/internal/platform/metrics"
	"sabha/internal/voting"
	dErrors "sabha/pkg/domain-errors"
	"sabha/pkg/platform/sentinel"
)

// ElectionSource loads elections for phase checks and authorization scope.
type ElectionSource interface {
	Get(ctx context.Context, id uuid.UUID) (*election.Election, error)
}

// Gate authorizes commission members for the election's level and unit.
type Gate interface {
	RequireCommission(ctx context.Context, memberID uuid.UUID, level directory.Level, orgUnitID uuid.UUID) error
}

// BallotSource lists the approved candidates in filing order. That order is
// the tie-break: when two candidates draw level, the earlier filing wins.
type BallotSource interface {
	Ballot(ctx context.Context, electionID uuid.UUID) ([]*nomination.Nomination, error)
}

// VoterRoll sizes the electorate for turnout percentages.
type VoterRoll interface {
	Voters(ctx context.Context, scope eligibility.Scope) ([]uuid.UUID, error)
}

// AuditPublisher is the slice of the audit pipeline this service emits to.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the result tabulator.
type Service struct {
	store     Store
	votes     voting.VoteStore
	elections ElectionSource
	ballots   BallotSource
	roll      VoterRoll
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

func New(store Store, votes voting.VoteStore, elections ElectionSource, ballots BallotSource, roll VoterRoll, gate Gate, opts ...Option) *Service {
	s := &Service{
		store:     store,
		votes:     votes,
		elections: elections,
		ballots:   ballots,
		roll:      roll,
		gate:      gate,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calculate tallies the approved votes. It can run again after further
// adjudication as long as the result is not certified.
func (s *Service) Calculate(ctx context.Context, actorID, electionID uuid.UUID) (*Result, error) {
	e, err := s.authorize(ctx, actorID, electionID)
	if err != nil {
		return nil, err
	}
	if e.Status != election.StatusVotingClosed && e.Status != election.StatusCompleted {
		return nil, dErrors.Newf(dErrors.CodeInvalidStateTransition, "election is %s, tallies run after voting closes", e.Status)
	}

	// The three inputs are independent reads.
	var (
		ballot   []*nomination.Nomination
		voters   []uuid.UUID
		approved []*voting.Vote
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ballot, err = s.ballots.Ballot(gctx, electionID)
		return err
	})
	g.Go(func() error {
		var err error
		voters, err = s.roll.Voters(gctx, eligibility.Scope{ElectionID: e.ID, Level: e.Level, OrgUnitID: e.OrgUnitID})
		return err
	})
	g.Go(func() error {
		var err error
		approved, err = s.votes.ListByStatus(gctx, electionID, voting.VoteApproved)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list approved votes")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		ElectionID:   electionID,
		Positions:    tally(ballot, approved, len(voters)),
		CalculatedAt: s.now(),
		CalculatedBy: actorID,
	}
	if err := s.store.Save(ctx, result); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeConflict, "result is certified and cannot be recalculated")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save result")
	}

	s.emitAudit(ctx, audit.EventResultCalculated, actorID, electionID, "")
	return result, nil
}

// Certify freezes the result. Voting must have closed and a tally must
// exist; certifying twice is a conflict.
func (s *Service) Certify(ctx context.Context, actorID, electionID uuid.UUID) (*Result, error) {
	e, err := s.authorize(ctx, actorID, electionID)
	if err != nil {
		return nil, err
	}
	if e.Status != election.StatusVotingClosed && e.Status != election.StatusCompleted {
		return nil, dErrors.Newf(dErrors.CodeInvalidStateTransition, "election is %s, certification requires voting to have closed", e.Status)
	}

	if err := s.store.Certify(ctx, electionID, actorID, s.now()); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "no tally exists for this election, calculate first")
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeConflict, "result is already certified")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to certify result")
		}
	}

	if s.metrics != nil {
		s.metrics.ResultsCertified.Inc()
	}
	s.emitAudit(ctx, audit.EventResultCertified, actorID, electionID, "certified")
	return s.Get(ctx, electionID)
}

// Get loads the stored result for an election.
func (s *Service) Get(ctx context.Context, electionID uuid.UUID) (*Result, error) {
	r, err := s.store.FindByElection(ctx, electionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no result exists for this election")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load result")
	}
	return r, nil
}

// tally groups approved votes by position and ranks candidates. Ballot
// order is filing order, so on equal counts the earlier filing lands first
// and takes the win.
func tally(ballot []*nomination.Nomination, approved []*voting.Vote, eligibleCount int) []PositionResult {
	counts := make(map[uuid.UUID]int, len(ballot))
	for _, v := range approved {
		counts[v.NominationID]++
	}

	byPosition := make(map[string][]*nomination.Nomination)
	var order []string
	for _, candidate := range ballot {
		if _, seen := byPosition[candidate.Position]; !seen {
			order = append(order, candidate.Position)
		}
		byPosition[candidate.Position] = append(byPosition[candidate.Position], candidate)
	}

	out := make([]PositionResult, 0, len(order))
	for _, position := range order {
		candidates := byPosition[position]
		pr := PositionResult{Position: position, EligibleVoters: eligibleCount}

		best := -1
		winnerIdx := -1
		for i, candidate := range candidates {
			count := counts[candidate.ID]
			pr.BallotsCounted += count
			if count > best {
				best = count
				winnerIdx = i
			}
			pr.Tallies = append(pr.Tallies, CandidateTally{
				NominationID: candidate.ID,
				MemberID:     candidate.MemberID,
				VoteCount:    count,
			})
		}
		for i := range pr.Tallies {
			if eligibleCount > 0 {
				pr.Tallies[i].Percentage = float64(pr.Tallies[i].VoteCount) / float64(eligibleCount) * 100
			}
		}
		if winnerIdx >= 0 && best > 0 {
			pr.Tallies[winnerIdx].Winner = true
		}
		out = append(out, pr)
	}
	return out
}

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

func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, actorID, electionID uuid.UUID, decision string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Emit(ctx, audit.Event{
		Action:     string(event),
		ActorID:    actorID,
		ElectionID: electionID,
		Decision:   decision,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "action", event, "error", err)
	}
}
