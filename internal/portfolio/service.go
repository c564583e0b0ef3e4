package portfolio

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sabha/internal/audit"
	"sabha/internal/directory"
	dErrors "sabha/pkg/domain-errors"
	"sabha/pkg/platform/sentinel"
)

// AuditPublisher is the slice of the audit pipeline this service emits to.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the authorization gate. Every mutating election operation calls
// Authorize or RequireCommission before touching state; both fail closed.
type Service struct {
	store  Store
	logger *slog.Logger
	audits AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.audits = publisher }
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize checks that the member holds a portfolio granting the capability
// for permissionKey/resourceType at the given level, or a global
// administrative override. Unresolved or insufficient grants return
// CodeForbidden; no side effects occur before this check passes.
func (s *Service) Authorize(ctx context.Context, memberID uuid.UUID, permissionKey, resourceType string, level directory.Level, want Capability) error {
	assignments, err := s.store.ActiveAssignments(ctx, memberID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve portfolio assignments")
	}
	if len(assignments) == 0 {
		s.logDenied(ctx, memberID, permissionKey, "no active portfolio")
		return dErrors.New(dErrors.CodeForbidden, "no active portfolio")
	}

	ids := make([]uuid.UUID, 0, len(assignments))
	for _, a := range assignments {
		if s.isGlobalOverride(a.Portfolio) {
			return nil
		}
		ids = append(ids, a.Portfolio.ID)
	}

	grant, err := s.store.FindGrant(ctx, ids, permissionKey, resourceType, level)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logDenied(ctx, memberID, permissionKey, "no matching grant")
			return dErrors.New(dErrors.CodeForbidden, "insufficient portfolio grants")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve permission grant")
	}
	if !grant.Capability.Has(want) {
		s.logDenied(ctx, memberID, permissionKey, "capability not granted")
		return dErrors.New(dErrors.CodeForbidden, "capability not granted")
	}
	return nil
}

// RequireCommission checks that the member holds an active
// election_commission portfolio at the given level, scoped to the org unit
// (an assignment with a zero unit is a level-wide commission seat).
func (s *Service) RequireCommission(ctx context.Context, memberID uuid.UUID, level directory.Level, orgUnitID uuid.UUID) error {
	assignments, err := s.store.ActiveAssignments(ctx, memberID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve portfolio assignments")
	}
	for _, a := range assignments {
		if a.Portfolio.Type != TypeElectionCommission || a.Portfolio.Level != level {
			continue
		}
		if a.Assignment.OrgUnitID == uuid.Nil || a.Assignment.OrgUnitID == orgUnitID {
			return nil
		}
	}
	s.logDenied(ctx, memberID, "election_commission", "no commission portfolio at level "+string(level))
	return dErrors.New(dErrors.CodeForbidden, "requires an election commission portfolio at the election's level")
}

// Assign creates an assignment after enforcing the conflict-of-interest
// invariant: a member cannot hold an election_commission portfolio and an
// executive/administrative/financial one at the same level.
func (s *Service) Assign(ctx context.Context, memberID, portfolioID, orgUnitID uuid.UUID, now time.Time) (*Assignment, error) {
	p, err := s.store.FindPortfolio(ctx, portfolioID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "portfolio not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load portfolio")
	}

	existing, err := s.store.ActiveAssignments(ctx, memberID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve portfolio assignments")
	}
	for _, a := range existing {
		if p.ConflictsWith(&a.Portfolio) {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
				"portfolio %s conflicts with held portfolio %s at level %s", p.Code, a.Portfolio.Code, p.Level)
		}
	}

	assignment := &Assignment{
		ID:          uuid.New(),
		MemberID:    memberID,
		PortfolioID: portfolioID,
		OrgUnitID:   orgUnitID,
		Active:      true,
		AssignedAt:  now,
	}
	if err := s.store.CreateAssignment(ctx, assignment); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create assignment")
	}

	s.emitAudit(ctx, audit.EventPortfolioAssigned, memberID, p.Code)
	return assignment, nil
}

// CreatePortfolio registers a portfolio definition.
func (s *Service) CreatePortfolio(ctx context.Context, code, name string, level directory.Level, typ Type, authorityRank int, parentID uuid.UUID) (*Portfolio, error) {
	p, err := NewPortfolio(uuid.New(), code, name, level, typ, authorityRank)
	if err != nil {
		return nil, err
	}
	p.ParentID = parentID
	if err := s.store.SavePortfolio(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a portfolio with this code already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save portfolio")
	}
	return p, nil
}

// GrantPermission attaches a permission grant to a portfolio.
func (s *Service) GrantPermission(ctx context.Context, portfolioID uuid.UUID, permissionKey, resourceType string, capability Capability, level directory.Level) (*Permission, error) {
	if _, err := s.store.FindPortfolio(ctx, portfolioID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "portfolio not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load portfolio")
	}
	perm := &Permission{
		PortfolioID:   portfolioID,
		PermissionKey: permissionKey,
		ResourceType:  resourceType,
		Capability:    capability,
		Level:         level,
	}
	if err := s.store.SavePermission(ctx, perm); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save permission")
	}
	return perm, nil
}

// EndAssignment deactivates an assignment; the member's history stays.
func (s *Service) EndAssignment(ctx context.Context, assignmentID uuid.UUID) error {
	if err := s.store.EndAssignment(ctx, assignmentID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "assignment not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to end assignment")
	}
	return nil
}

// isGlobalOverride recognizes the top administrative seat, which bypasses
// per-key grants. Rank 1 at state level is the organization's admin root.
func (s *Service) isGlobalOverride(p Portfolio) bool {
	return p.Type == TypeAdministrative && p.Level == directory.LevelState && p.AuthorityRank == 1
}

func (s *Service) logDenied(ctx context.Context, memberID uuid.UUID, permissionKey, reason string) {
	s.logger.WarnContext(ctx, "authorization denied",
		"member_id", memberID,
		"permission_key", permissionKey,
		"reason", reason,
	)
}

func (s *Service) emitAudit(ctx context.Context, action audit.AuditEvent, memberID uuid.UUID, subject string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Emit(ctx, audit.Event{
		Action:   string(action),
		MemberID: memberID,
		Subject:  subject,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "action", action, "error", err)
	}
}
