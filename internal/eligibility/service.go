package eligibility

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sabha/internal/directory"
	"sabha/internal/platform/metrics"
	"sabha/internal/portfolio"
	dErrors "sabha/pkg/domain-errors"
	"sabha/pkg/platform/sentinel"
)

// RoleSource supplies active portfolio assignments for snapshot building.
type RoleSource interface {
	ListActiveAssignments(ctx context.Context) ([]portfolio.AssignmentWithPortfolio, error)
}

// Service wraps the pure engine with snapshot building, criteria storage and
// caching. Results are cached per (election, criteria version, membership
// version); any change to either version makes old keys unreachable, and
// Recompute drops them eagerly before voting opens.
type Service struct {
	engine   Engine
	dir      directory.Reader
	roles    RoleSource
	criteria CriteriaStore
	cache    Cache
	cacheTTL time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

func New(dir directory.Reader, roles RoleSource, criteria CriteriaStore, cache Cache, opts ...Option) *Service {
	s := &Service{
		engine:   NewEngine(),
		dir:      dir,
		roles:    roles,
		criteria: criteria,
		cache:    cache,
		cacheTTL: time.Hour,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Voters returns the member IDs eligible to vote in the scoped election.
func (s *Service) Voters(ctx context.Context, scope Scope) ([]uuid.UUID, error) {
	return s.compute(ctx, "voters", scope)
}

// Candidates returns the member IDs eligible to stand in the scoped election.
func (s *Service) Candidates(ctx context.Context, scope Scope) ([]uuid.UUID, error) {
	return s.compute(ctx, "candidates", scope)
}

// IsEligibleVoter is a membership check over Voters.
func (s *Service) IsEligibleVoter(ctx context.Context, scope Scope, memberID uuid.UUID) (bool, error) {
	ids, err := s.Voters(ctx, scope)
	if err != nil {
		return false, err
	}
	return contains(ids, memberID), nil
}

// IsEligibleCandidate is a membership check over Candidates.
func (s *Service) IsEligibleCandidate(ctx context.Context, scope Scope, memberID uuid.UUID) (bool, error) {
	ids, err := s.Candidates(ctx, scope)
	if err != nil {
		return false, err
	}
	return contains(ids, memberID), nil
}

// SetCriteria stores commission-set rules and invalidates cached sets for
// the election.
func (s *Service) SetCriteria(ctx context.Context, criteria *Criteria) (*Criteria, error) {
	if err := s.criteria.Save(ctx, criteria); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save eligibility criteria")
	}
	if err := s.cache.InvalidateElection(ctx, criteria.ElectionID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate eligibility cache",
			"election_id", criteria.ElectionID, "error", err)
	}
	return criteria, nil
}

// Recompute drops cached sets and rebuilds them from fresh data. The
// lifecycle manager calls this before opening voting so membership changes
// after draft creation are reflected.
func (s *Service) Recompute(ctx context.Context, scope Scope) error {
	if err := s.cache.InvalidateElection(ctx, scope.ElectionID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to invalidate eligibility cache")
	}
	if _, err := s.compute(ctx, "voters", scope); err != nil {
		return err
	}
	_, err := s.compute(ctx, "candidates", scope)
	return err
}

func (s *Service) compute(ctx context.Context, kind string, scope Scope) ([]uuid.UUID, error) {
	criteria, err := s.currentCriteria(ctx, scope.ElectionID)
	if err != nil {
		return nil, err
	}
	criteriaVersion := 0
	if criteria != nil {
		criteriaVersion = criteria.Version
	}
	membershipVersion, err := s.dir.MembershipVersion(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read membership version")
	}

	key := cacheKey(kind, scope, criteriaVersion, membershipVersion)
	if ids, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return ids, nil
	} else if err != nil {
		s.logger.WarnContext(ctx, "eligibility cache read failed", "key", key, "error", err)
	}

	start := time.Now()
	snapshot, err := s.buildSnapshot(ctx, scope, membershipVersion)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	if kind == "voters" {
		ids = s.engine.ComputeVoters(snapshot, scope, criteria)
	} else {
		ids = s.engine.ComputeCandidates(snapshot, scope, criteria)
	}
	if s.metrics != nil {
		s.metrics.EligibilityCompute.Observe(time.Since(start).Seconds())
	}

	if err := s.cache.Set(ctx, key, ids, s.cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "eligibility cache write failed", "key", key, "error", err)
	}
	return ids, nil
}

func (s *Service) currentCriteria(ctx context.Context, electionID uuid.UUID) (*Criteria, error) {
	criteria, err := s.criteria.Find(ctx, electionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load eligibility criteria")
	}
	return criteria, nil
}

// buildSnapshot gathers the members, units and role holdings the engine
// needs for one election scope.
func (s *Service) buildSnapshot(ctx context.Context, scope Scope, membershipVersion int64) (*Snapshot, error) {
	snapshot := &Snapshot{
		Members:           make(map[uuid.UUID]directory.Member),
		Units:             make(map[uuid.UUID]directory.OrgUnit),
		MembershipVersion: membershipVersion,
	}

	assignments, err := s.roles.ListActiveAssignments(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list role holdings")
	}
	for _, a := range assignments {
		snapshot.Holdings = append(snapshot.Holdings, RoleHolding{
			MemberID:      a.Assignment.MemberID,
			PortfolioCode: a.Portfolio.Code,
			PortfolioType: a.Portfolio.Type,
			Level:         a.Portfolio.Level,
			OrgUnitID:     a.Assignment.OrgUnitID,
			AuthorityRank: a.Portfolio.AuthorityRank,
		})
		if err := s.addMember(ctx, snapshot, a.Assignment.MemberID); err != nil {
			return nil, err
		}
		if err := s.addUnit(ctx, snapshot, a.Assignment.OrgUnitID); err != nil {
			return nil, err
		}
	}

	// Tehsil elections need the full member roll of the unit, not just role
	// holders.
	if scope.Level == directory.LevelTehsil {
		members, err := s.dir.ListMembersByUnit(ctx, scope.OrgUnitID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list unit members")
		}
		for _, m := range members {
			snapshot.Members[m.ID] = m
		}
	}
	if err := s.addUnit(ctx, snapshot, scope.OrgUnitID); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Service) addMember(ctx context.Context, snapshot *Snapshot, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	if _, ok := snapshot.Members[id]; ok {
		return nil
	}
	m, err := s.dir.FindMember(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member")
	}
	snapshot.Members[id] = *m
	return nil
}

func (s *Service) addUnit(ctx context.Context, snapshot *Snapshot, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	if _, ok := snapshot.Units[id]; ok {
		return nil
	}
	u, err := s.dir.FindOrgUnit(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load org unit")
	}
	snapshot.Units[id] = *u
	return nil
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
