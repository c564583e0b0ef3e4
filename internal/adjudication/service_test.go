package adjudication

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sabha/internal/directory"
	"sabha/internal/election"
	"sabha/internal/voting"
	dErrors "sabha/pkg/domain-errors"
)

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

type fakeGate struct {
	denied map[uuid.UUID]bool
}

func (g *fakeGate) RequireCommission(_ context.Context, memberID uuid.UUID, _ directory.Level, _ uuid.UUID) error {
	if g.denied[memberID] {
		return dErrors.New(dErrors.CodeForbidden, "requires an election commission portfolio")
	}
	return nil
}

type fixture struct {
	svc      *Service
	votes    *voting.InMemoryVoteStore
	dir      *directory.InMemoryDirectory
	gate     *fakeGate
	election *election.Election
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	e := &election.Election{
		ID:        uuid.New(),
		Level:     directory.LevelTehsil,
		OrgUnitID: uuid.New(),
		Status:    election.StatusVotingClosed,
	}
	f := &fixture{
		votes:    voting.NewInMemoryVoteStore(),
		dir:      directory.NewInMemoryDirectory(),
		gate:     &fakeGate{denied: map[uuid.UUID]bool{}},
		election: e,
	}
	f.svc = New(f.votes, &fakeElections{elections: map[uuid.UUID]*election.Election{e.ID: e}}, f.dir, f.gate)
	return f
}

func (f *fixture) pendingVote(t *testing.T, submittedAt time.Time) *voting.Vote {
	t.Helper()
	voterID := uuid.New()
	f.dir.PutMember(directory.Member{
		ID:                voterID,
		Name:              "Asha Verma",
		TehsilID:          f.election.OrgUnitID,
		Active:            true,
		ReferencePhotoRef: "ref-" + voterID.String(),
	})
	v := &voting.Vote{
		ID:           uuid.New(),
		ElectionID:   f.election.ID,
		VoterID:      voterID,
		NominationID: uuid.New(),
		Position:     "President",
		Status:       voting.VotePending,
		LivePhotoRef: "live-" + voterID.String(),
		SubmittedAt:  submittedAt,
	}
	require.NoError(t, f.votes.Create(context.Background(), v))
	return v
}

func TestListPending(t *testing.T) {
	ctx := context.Background()
	commissioner := uuid.New()

	t.Run("pairs each vote with both photos, oldest first", func(t *testing.T) {
		f := newFixture(t)
		base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
		newer := f.pendingVote(t, base.Add(time.Minute))
		older := f.pendingVote(t, base)

		queue, err := f.svc.ListPending(ctx, commissioner, f.election.ID)
		require.NoError(t, err)
		require.Len(t, queue, 2)
		assert.Equal(t, older.ID, queue[0].VoteID)
		assert.Equal(t, newer.ID, queue[1].VoteID)
		assert.Equal(t, "Asha Verma", queue[0].VoterName)
		assert.Equal(t, older.LivePhotoRef, queue[0].LivePhotoRef)
		assert.Equal(t, "ref-"+older.VoterID.String(), queue[0].ReferencePhotoRef)
	})

	t.Run("decided votes leave the queue", func(t *testing.T) {
		f := newFixture(t)
		v := f.pendingVote(t, time.Now())
		_, err := f.svc.Approve(ctx, commissioner, v.ID)
		require.NoError(t, err)

		queue, err := f.svc.ListPending(ctx, commissioner, f.election.ID)
		require.NoError(t, err)
		assert.Empty(t, queue)
	})

	t.Run("denies non-commission actors", func(t *testing.T) {
		f := newFixture(t)
		outsider := uuid.New()
		f.gate.denied[outsider] = true

		_, err := f.svc.ListPending(ctx, outsider, f.election.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func TestDecisions(t *testing.T) {
	ctx := context.Background()
	commissioner := uuid.New()

	t.Run("approve counts the vote", func(t *testing.T) {
		f := newFixture(t)
		v := f.pendingVote(t, time.Now())

		decided, err := f.svc.Approve(ctx, commissioner, v.ID)
		require.NoError(t, err)
		assert.Equal(t, voting.VoteApproved, decided.Status)
		assert.Equal(t, commissioner, decided.AdjudicatedBy)
		require.NotNil(t, decided.AdjudicatedAt)
	})

	t.Run("reject records the reason", func(t *testing.T) {
		f := newFixture(t)
		v := f.pendingVote(t, time.Now())

		decided, err := f.svc.Reject(ctx, commissioner, v.ID, "Live photo does not match the reference")
		require.NoError(t, err)
		assert.Equal(t, voting.VoteRejected, decided.Status)
		assert.Equal(t, "Live photo does not match the reference", decided.RejectReason)
	})

	t.Run("reject requires a substantive reason", func(t *testing.T) {
		f := newFixture(t)
		v := f.pendingVote(t, time.Now())

		_, err := f.svc.Reject(ctx, commissioner, v.ID, "bad")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("decisions are final", func(t *testing.T) {
		f := newFixture(t)
		v := f.pendingVote(t, time.Now())

		_, err := f.svc.Approve(ctx, commissioner, v.ID)
		require.NoError(t, err)

		_, err = f.svc.Reject(ctx, commissioner, v.ID, "second thoughts about the match")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))

		_, err = f.svc.Approve(ctx, commissioner, v.ID)
		require.Error(t, err)
	})

	t.Run("rejected vote does not free the voter's slot", func(t *testing.T) {
		f := newFixture(t)
		v := f.pendingVote(t, time.Now())

		_, err := f.svc.Reject(ctx, commissioner, v.ID, "Live photo does not match the reference")
		require.NoError(t, err)

		retry := &voting.Vote{
			ID:         uuid.New(),
			ElectionID: v.ElectionID,
			VoterID:    v.VoterID,
			Status:     voting.VotePending,
		}
		err = f.votes.Create(ctx, retry)
		require.Error(t, err, "the uniqueness row survives rejection")
	})

	t.Run("unknown vote is not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Approve(ctx, commissioner, uuid.New())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
