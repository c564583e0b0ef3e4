package nomination

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sabha/internal/directory"
	"sabha/internal/election"
	"sabha/internal/eligibility"
	dErrors "sabha/pkg/domain-errors"
)

var testVision = strings.Repeat("Strengthen the tehsil unit. ", 3)

type fakeElections struct {
	elections map[uuid.UUID]*election.Election
}

func (f *fakeElections) Get(_ context.Context, id uuid.UUID) (*election.Election, error) {
	if e, ok := f.elections[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "election not found")
}

type fakeChecker struct {
	eligible map[uuid.UUID]bool
}

func (f *fakeChecker) IsEligibleCandidate(_ context.Context, _ eligibility.Scope, memberID uuid.UUID) (bool, error) {
	return f.eligible[memberID], nil
}

type allowAllGate struct {
	denied map[uuid.UUID]bool
}

func (g *allowAllGate) RequireCommission(_ context.Context, memberID uuid.UUID, _ directory.Level, _ uuid.UUID) error {
	if g.denied[memberID] {
		return dErrors.New(dErrors.CodeForbidden, "requires an election commission portfolio")
	}
	return nil
}

type fixture struct {
	svc       *Service
	election  *election.Election
	elections *fakeElections
	checker   *fakeChecker
	gate      *allowAllGate
	candidate uuid.UUID
}

func newFixture(t *testing.T, status election.Status) *fixture {
	t.Helper()
	e := &election.Election{
		ID:        uuid.New(),
		Level:     directory.LevelTehsil,
		OrgUnitID: uuid.New(),
		Status:    status,
	}
	candidate := uuid.New()
	f := &fixture{
		election:  e,
		elections: &fakeElections{elections: map[uuid.UUID]*election.Election{e.ID: e}},
		checker:   &fakeChecker{eligible: map[uuid.UUID]bool{candidate: true}},
		gate:      &allowAllGate{denied: map[uuid.UUID]bool{}},
		candidate: candidate,
	}
	f.svc = New(NewInMemoryStore(), f.elections, f.checker, f.gate)
	return f
}

func TestServiceFile(t *testing.T) {
	ctx := context.Background()

	t.Run("files a pending nomination", func(t *testing.T) {
		f := newFixture(t, election.StatusNominationsOpen)
		n, err := f.svc.File(ctx, f.candidate, f.election.ID, "President", testVision)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, n.Status)
		assert.Equal(t, "President", n.Position)
	})

	t.Run("rejects filing when nominations are not open", func(t *testing.T) {
		f := newFixture(t, election.StatusDraft)
		_, err := f.svc.File(ctx, f.candidate, f.election.ID, "President", testVision)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})

	t.Run("rejects filing outside the nomination window", func(t *testing.T) {
		f := newFixture(t, election.StatusNominationsOpen)
		past := time.Now().Add(-48 * time.Hour)
		f.election.NominationWindow = election.Window{Start: past, End: past.Add(time.Hour)}
		f.elections.elections[f.election.ID] = f.election

		_, err := f.svc.File(ctx, f.candidate, f.election.ID, "President", testVision)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects ineligible candidates", func(t *testing.T) {
		f := newFixture(t, election.StatusNominationsOpen)
		outsider := uuid.New()
		_, err := f.svc.File(ctx, outsider, f.election.ID, "President", testVision)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotEligible))
	})

	t.Run("rejects a short vision statement", func(t *testing.T) {
		f := newFixture(t, election.StatusNominationsOpen)
		_, err := f.svc.File(ctx, f.candidate, f.election.ID, "President", "too short")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects a duplicate filing for the same position", func(t *testing.T) {
		f := newFixture(t, election.StatusNominationsOpen)
		_, err := f.svc.File(ctx, f.candidate, f.election.ID, "President", testVision)
		require.NoError(t, err)

		_, err = f.svc.File(ctx, f.candidate, f.election.ID, "President", testVision)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("allows the same member to stand for another position", func(t *testing.T) {
		f := newFixture(t, election.StatusNominationsOpen)
		_, err := f.svc.File(ctx, f.candidate, f.election.ID, "President", testVision)
		require.NoError(t, err)
		_, err = f.svc.File(ctx, f.candidate, f.election.ID, "Secretary", testVision)
		require.NoError(t, err)
	})
}

func TestServiceDecisions(t *testing.T) {
	ctx := context.Background()
	commissioner := uuid.New()

	file := func(t *testing.T, f *fixture) *Nomination {
		t.Helper()
		n, err := f.svc.File(ctx, f.candidate, f.election.ID, "President", testVision)
		require.NoError(t, err)
		return n
	}

	t.Run("approves a pending nomination", func(t *testing.T) {
		f := newFixture(t, election.StatusNominationsOpen)
		n := file(t, f)

		decided, err := f.svc.Approve(ctx, commissioner, n.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, decided.Status)
		assert.Equal(t, commissioner, decided.DecidedBy)
		require.NotNil(t, decided.DecidedAt)
	})

	t.Run("rejects with a substantive reason", func(t *testing.T) {
		f := newFixture(t, election.StatusNominationsOpen)
		n := file(t, f)

		decided, err := f.svc.Reject(ctx, commissioner, n.ID, "Filed for a position outside the member's unit")
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, decided.Status)
	})

	t.Run("requires a minimum-length reason", func(t *testing.T) {
		f := newFixture(t, election.StatusNominationsOpen)
		n := file(t, f)

		_, err := f.svc.Reject(ctx, commissioner, n.ID, "no")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("decisions are final", func(t *testing.T) {
		f := newFixture(t, election.StatusNominationsOpen)
		n := file(t, f)

		_, err := f.svc.Approve(ctx, commissioner, n.ID)
		require.NoError(t, err)

		_, err = f.svc.Reject(ctx, commissioner, n.ID, "changed our mind about this one")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})

	t.Run("denies non-commission actors", func(t *testing.T) {
		f := newFixture(t, election.StatusNominationsOpen)
		n := file(t, f)
		outsider := uuid.New()
		f.gate.denied[outsider] = true

		_, err := f.svc.Approve(ctx, outsider, n.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("no decisions once voting opens", func(t *testing.T) {
		f := newFixture(t, election.StatusNominationsOpen)
		n := file(t, f)

		f.election.Status = election.StatusVotingOpen
		f.elections.elections[f.election.ID] = f.election

		_, err := f.svc.Approve(ctx, commissioner, n.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})
}

func TestServiceBallot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, election.StatusNominationsOpen)
	commissioner := uuid.New()

	second := uuid.New()
	f.checker.eligible[second] = true

	first, err := f.svc.File(ctx, f.candidate, f.election.ID, "President", testVision)
	require.NoError(t, err)
	other, err := f.svc.File(ctx, second, f.election.ID, "President", testVision)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, commissioner, first.ID)
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, commissioner, other.ID, "candidate withdrew before scrutiny")
	require.NoError(t, err)

	ballot, err := f.svc.Ballot(ctx, f.election.ID)
	require.NoError(t, err)
	require.Len(t, ballot, 1, "only approved nominations appear on the ballot")
	assert.Equal(t, first.ID, ballot[0].ID)
}
