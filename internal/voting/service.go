package voting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"sabha/internal/audit"
	"sabha/internal/election"
	"sabha/internal/eligibility"
	"sabha/internal/nomination"
	"sabha/internal/photo"
	"sabha/internal/platform/metrics"
	"sabha/internal/platform/middleware"
	"sabha/internal/platform/telemetry"
	dErrors "sabha/pkg/domain-errors"
	"sabha/pkg/platform/sentinel"
	"sabha/pkg/secrets"
)

const tracerName = "sabha/voting"

// maxOTPAttempts is how many wrong codes a voter gets before the code is
// burned and a new request is required.
const maxOTPAttempts = 5

// ElectionSource loads elections for phase and window checks.
type ElectionSource interface {
	Get(ctx context.Context, id uuid.UUID) (*election.Election, error)
}

// VoterChecker answers whether a member is on the voter roll.
type VoterChecker interface {
	IsEligibleVoter(ctx context.Context, scope eligibility.Scope, memberID uuid.UUID) (bool, error)
}

// BallotSource lists the approved candidates a vote may name.
type BallotSource interface {
	Ballot(ctx context.Context, electionID uuid.UUID) ([]*nomination.Nomination, error)
}

// AuditPublisher is the slice of the audit pipeline this service emits to.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// TxRunner runs fn atomically. The postgres wiring passes tx.Execute so the
// vote insert commits or rolls back as one statement group; the in-memory
// wiring runs fn directly.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Service implements the secure voting protocol: request a one-time code,
// verify it into a short-lived session, then submit exactly one ballot with
// a live photo. Every check the client performed is repeated here.
type Service struct {
	otps       OTPStore
	sessions   SessionStore
	votes      VoteStore
	elections  ElectionSource
	checker    VoterChecker
	ballots    BallotSource
	notifier   Notifier
	photos     photo.Store
	runTx      TxRunner
	otpTTL     time.Duration
	otpDigits  int
	sessionTTL time.Duration
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

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithOTPPolicy overrides the default code length and lifetimes.
func WithOTPPolicy(digits int, otpTTL, sessionTTL time.Duration) Option {
	return func(s *Service) {
		s.otpDigits = digits
		s.otpTTL = otpTTL
		s.sessionTTL = sessionTTL
	}
}

// WithTxRunner makes vote submission run inside the given transaction
// boundary.
func WithTxRunner(run TxRunner) Option {
	return func(s *Service) { s.runTx = run }
}

func New(otps OTPStore, sessions SessionStore, votes VoteStore, elections ElectionSource, checker VoterChecker, ballots BallotSource, notifier Notifier, photos photo.Store, opts ...Option) *Service {
	s := &Service{
		otps:       otps,
		sessions:   sessions,
		votes:      votes,
		elections:  elections,
		checker:    checker,
		ballots:    ballots,
		notifier:   notifier,
		photos:     photos,
		runTx:      func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) },
		otpTTL:     5 * time.Minute,
		otpDigits:  6,
		sessionTTL: 10 * time.Minute,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestOTP issues a one-time code to an eligible voter who has not voted
// yet. Requesting again replaces the earlier code.
func (s *Service) RequestOTP(ctx context.Context, memberID, electionID uuid.UUID) (expiresAt time.Time, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "voting.RequestOTP",
		attribute.String(telemetry.AttrElectionID, electionID.String()),
		attribute.String(telemetry.AttrMemberID, memberID.String()),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	e, err := s.votingElection(ctx, electionID)
	if err != nil {
		return time.Time{}, err
	}
	if err = s.requireEligibleVoter(ctx, e, memberID); err != nil {
		return time.Time{}, err
	}
	if err = s.requireNotVoted(ctx, electionID, memberID); err != nil {
		return time.Time{}, err
	}

	code, err := secrets.GenerateNumericCode(s.otpDigits)
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate voting code")
	}
	hash, err := secrets.Hash(code)
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash voting code")
	}

	now := s.now()
	record := OTPRecord{
		ElectionID: electionID,
		MemberID:   memberID,
		CodeHash:   hash,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.otpTTL),
	}
	if err = s.otps.Save(ctx, record, s.otpTTL); err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store voting code")
	}
	if err = s.notifier.SendOTP(ctx, memberID, code); err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to deliver voting code")
	}

	if s.metrics != nil {
		s.metrics.OTPIssued.Inc()
	}
	s.emitAudit(ctx, audit.EventOTPIssued, memberID, electionID, "", "")
	return record.ExpiresAt, nil
}

// VerifyOTP exchanges a correct, unexpired code for a verified session. The
// code is consumed on success; repeated wrong guesses burn it.
func (s *Service) VerifyOTP(ctx context.Context, memberID, electionID uuid.UUID, code string) (_ *VerifiedSession, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "voting.VerifyOTP",
		attribute.String(telemetry.AttrElectionID, electionID.String()),
		attribute.String(telemetry.AttrMemberID, memberID.String()),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	record, err := s.otps.Find(ctx, electionID, memberID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.recordVerifyFailure(ctx, memberID, electionID, "not_found")
			return nil, dErrors.New(dErrors.CodeInvalidOTP, "no voting code outstanding")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load voting code")
	}
	now := s.now()
	if record.Expired(now) {
		_ = s.otps.Consume(ctx, electionID, memberID)
		s.recordVerifyFailure(ctx, memberID, electionID, "expired")
		return nil, dErrors.New(dErrors.CodeExpiredOTP, "voting code has expired")
	}

	if verifyErr := secrets.Verify(code, record.CodeHash); verifyErr != nil {
		// The store increments atomically so racing wrong guesses cannot
		// slip past the cap.
		attempts, countErr := s.otps.RecordFailure(ctx, electionID, memberID)
		if countErr == nil && attempts >= maxOTPAttempts {
			_ = s.otps.Consume(ctx, electionID, memberID)
			s.recordVerifyFailure(ctx, memberID, electionID, "attempts_exhausted")
			return nil, dErrors.New(dErrors.CodeInvalidOTP, "too many wrong codes, request a new one")
		}
		s.recordVerifyFailure(ctx, memberID, electionID, "mismatch")
		return nil, dErrors.New(dErrors.CodeInvalidOTP, "voting code does not match")
	}

	if err = s.otps.Consume(ctx, electionID, memberID); err != nil {
		// Lost the race with a concurrent verification of the same code.
		s.recordVerifyFailure(ctx, memberID, electionID, "already_used")
		return nil, dErrors.New(dErrors.CodeInvalidOTP, "voting code already used")
	}

	token, err := secrets.Generate()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session token")
	}
	session := VerifiedSession{
		Token:      token,
		ElectionID: electionID,
		MemberID:   memberID,
		VerifiedAt: now,
		ExpiresAt:  now.Add(s.sessionTTL),
	}
	if err = s.sessions.Save(ctx, session, s.sessionTTL); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store verified session")
	}
	return &session, nil
}

// SubmitVote consumes a verified session and writes exactly one pending
// ballot. Phase, window, eligibility and candidate checks all run again
// here; the session only proves the OTP step, nothing else. Every check runs
// against an unclaimed session so a rejected submission does not cost the
// voter their verification; the session is spent only once the ballot is
// ready to insert.
func (s *Service) SubmitVote(ctx context.Context, memberID uuid.UUID, sessionToken string, nominationID uuid.UUID, livePhoto []byte, photoContentType string) (_ *Vote, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "voting.SubmitVote")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	session, err := s.sessions.Find(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "no verified session, complete OTP verification first")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verified session")
	}
	if session.Expired(s.now()) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "verification session has expired, verify again")
	}
	if session.MemberID != memberID {
		s.emitAudit(ctx, audit.EventVoteSessionMismatch, memberID, session.ElectionID, "", "session issued to a different member")
		return nil, dErrors.New(dErrors.CodeForbidden, "verification session belongs to a different member")
	}
	span.SetAttributes(
		attribute.String(telemetry.AttrElectionID, session.ElectionID.String()),
		attribute.String(telemetry.AttrMemberID, session.MemberID.String()),
	)

	e, err := s.votingElection(ctx, session.ElectionID)
	if err != nil {
		return nil, err
	}
	if err = s.requireEligibleVoter(ctx, e, session.MemberID); err != nil {
		return nil, err
	}
	candidate, err := s.approvedCandidate(ctx, e.ID, nominationID)
	if err != nil {
		return nil, err
	}
	if len(livePhoto) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "a live photo is required to submit a vote")
	}

	if _, err = s.sessions.Consume(ctx, sessionToken); err != nil {
		// Lost the race with a concurrent submission on the same session.
		return nil, dErrors.New(dErrors.CodeUnauthorized, "verification session already used")
	}

	photoRef, err := s.photos.Save(ctx, livePhoto, photoContentType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store live photo")
	}

	vote := &Vote{
		ID:           uuid.New(),
		ElectionID:   e.ID,
		VoterID:      session.MemberID,
		NominationID: candidate.ID,
		Position:     candidate.Position,
		Status:       VotePending,
		LivePhotoRef: photoRef,
		SubmittedAt:  s.now(),
		ClientIP:     middleware.GetClientIP(ctx),
		ClientDevice: middleware.GetClientDevice(ctx),
	}
	err = s.runTx(ctx, func(ctx context.Context) error {
		return s.votes.Create(ctx, vote)
	})
	if err != nil {
		// The ballot never landed, so its photo must not linger.
		if delErr := s.photos.Delete(ctx, photoRef); delErr != nil {
			s.logger.WarnContext(ctx, "failed to remove photo of unrecorded vote", "photo_ref", photoRef, "error", delErr)
		}
		if errors.Is(err, sentinel.ErrConflict) {
			s.emitAudit(ctx, audit.EventDuplicateVote, session.MemberID, e.ID, candidate.Position, "")
			return nil, dErrors.New(dErrors.CodeAlreadyVoted, "a vote is already recorded for this election")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record vote")
	}

	if s.metrics != nil {
		s.metrics.VotesSubmitted.Inc()
	}
	span.SetAttributes(attribute.String(telemetry.AttrVoteID, vote.ID.String()))
	s.emitAudit(ctx, audit.EventVoteSubmitted, session.MemberID, e.ID, candidate.Position, "")
	return vote, nil
}

// votingElection loads the election and confirms votes are being accepted.
func (s *Service) votingElection(ctx context.Context, electionID uuid.UUID) (*election.Election, error) {
	e, err := s.elections.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if e.Status != election.StatusVotingOpen {
		return nil, dErrors.Newf(dErrors.CodeInvalidStateTransition, "election is %s, voting is not open", e.Status)
	}
	if !e.VotingWindow.Contains(s.now()) {
		return nil, dErrors.New(dErrors.CodeValidation, "outside the voting window")
	}
	return e, nil
}

func (s *Service) requireEligibleVoter(ctx context.Context, e *election.Election, memberID uuid.UUID) error {
	eligible, err := s.checker.IsEligibleVoter(ctx, eligibility.Scope{ElectionID: e.ID, Level: e.Level, OrgUnitID: e.OrgUnitID}, memberID)
	if err != nil {
		return err
	}
	if !eligible {
		return dErrors.New(dErrors.CodeNotEligible, "member is not on the voter roll for this election")
	}
	return nil
}

func (s *Service) requireNotVoted(ctx context.Context, electionID, memberID uuid.UUID) error {
	_, err := s.votes.FindByVoter(ctx, electionID, memberID)
	if err == nil {
		return dErrors.New(dErrors.CodeAlreadyVoted, "a vote is already recorded for this election")
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check for an existing vote")
}

func (s *Service) approvedCandidate(ctx context.Context, electionID, nominationID uuid.UUID) (*nomination.Nomination, error) {
	ballot, err := s.ballots.Ballot(ctx, electionID)
	if err != nil {
		return nil, err
	}
	for _, candidate := range ballot {
		if candidate.ID == nominationID {
			return candidate, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeValidation, "chosen candidate is not on this election's ballot")
}

func (s *Service) recordVerifyFailure(ctx context.Context, memberID, electionID uuid.UUID, reason string) {
	if s.metrics != nil {
		s.metrics.OTPVerifyFailed.WithLabelValues(reason).Inc()
	}
	s.emitAudit(ctx, audit.EventOTPVerifyFailed, memberID, electionID, "", reason)
}

func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, memberID, electionID uuid.UUID, subject, reason string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Emit(ctx, audit.Event{
		Action:     string(event),
		MemberID:   memberID,
		ElectionID: electionID,
		Subject:    subject,
		Reason:     reason,
		RequestID:  middleware.GetRequestID(ctx),
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "action", event, "error", err)
	}
}
