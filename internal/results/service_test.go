package results

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sabha/internal/directory"
	"sabha/internal/election"
	"sabha/internal/eligibility"
	"sabha/internal/nomination"
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

type fakeBallot struct {
	candidates []*nomination.Nomination
}

func (f *fakeBallot) Ballot(_ context.Context, _ uuid.UUID) ([]*nomination.Nomination, error) {
	return f.candidates, nil
}

type fakeRoll struct {
	voters []uuid.UUID
}

func (f *fakeRoll) Voters(_ context.Context, _ eligibility.Scope) ([]uuid.UUID, error) {
	return f.voters, nil
}

type fixture struct {
	svc      *Service
	votes    *voting.InMemoryVoteStore
	election *election.Election
	ballot   *fakeBallot
	roll     *fakeRoll
}

func newFixture(t *testing.T, status election.Status) *fixture {
	t.Helper()
	e := &election.Election{
		ID:        uuid.New(),
		Level:     directory.LevelTehsil,
		OrgUnitID: uuid.New(),
		Status:    status,
	}
	roll := &fakeRoll{}
	for i := 0; i < 10; i++ {
		roll.voters = append(roll.voters, uuid.New())
	}
	f := &fixture{
		votes:    voting.NewInMemoryVoteStore(),
		election: e,
		ballot:   &fakeBallot{},
		roll:     roll,
	}
	f.svc = New(
		NewInMemoryStore(),
		f.votes,
		&fakeElections{elections: map[uuid.UUID]*election.Election{e.ID: e}},
		f.ballot,
		f.roll,
		&fakeGate{denied: map[uuid.UUID]bool{}},
	)
	return f
}

// addCandidate appends to the ballot in filing order.
func (f *fixture) addCandidate(position string, filedAt time.Time) *nomination.Nomination {
	n := &nomination.Nomination{
		ID:         uuid.New(),
		ElectionID: f.election.ID,
		MemberID:   uuid.New(),
		Position:   position,
		Status:     nomination.StatusApproved,
		FiledAt:    filedAt,
	}
	f.ballot.candidates = append(f.ballot.candidates, n)
	return n
}

func (f *fixture) castVotes(t *testing.T, n *nomination.Nomination, status voting.VoteStatus, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		v := &voting.Vote{
			ID:           uuid.New(),
			ElectionID:   f.election.ID,
			VoterID:      uuid.New(),
			NominationID: n.ID,
			Position:     n.Position,
			Status:       status,
			SubmittedAt:  time.Now(),
		}
		require.NoError(t, f.votes.Create(context.Background(), v))
	}
}

func TestCalculate(t *testing.T) {
	ctx := context.Background()
	commissioner := uuid.New()
	filed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("counts approved votes only", func(t *testing.T) {
		f := newFixture(t, election.StatusVotingClosed)
		a := f.addCandidate("President", filed)
		b := f.addCandidate("President", filed.Add(time.Hour))
		f.castVotes(t, a, voting.VoteApproved, 4)
		f.castVotes(t, a, voting.VotePending, 2)
		f.castVotes(t, b, voting.VoteApproved, 3)
		f.castVotes(t, b, voting.VoteRejected, 5)

		result, err := f.svc.Calculate(ctx, commissioner, f.election.ID)
		require.NoError(t, err)
		require.Len(t, result.Positions, 1)

		pr := result.Positions[0]
		assert.Equal(t, "President", pr.Position)
		assert.Equal(t, 10, pr.EligibleVoters)
		assert.Equal(t, 7, pr.BallotsCounted)
		require.Len(t, pr.Tallies, 2)
		assert.Equal(t, 4, pr.Tallies[0].VoteCount)
		assert.InDelta(t, 40.0, pr.Tallies[0].Percentage, 0.001)
		assert.True(t, pr.Tallies[0].Winner)
		assert.False(t, pr.Tallies[1].Winner)
	})

	t.Run("tie goes to the earlier filing", func(t *testing.T) {
		f := newFixture(t, election.StatusVotingClosed)
		early := f.addCandidate("Secretary", filed)
		late := f.addCandidate("Secretary", filed.Add(time.Hour))
		f.castVotes(t, early, voting.VoteApproved, 3)
		f.castVotes(t, late, voting.VoteApproved, 3)

		result, err := f.svc.Calculate(ctx, commissioner, f.election.ID)
		require.NoError(t, err)
		pr := result.Positions[0]
		assert.Equal(t, early.ID, pr.Tallies[0].NominationID)
		assert.True(t, pr.Tallies[0].Winner)
		assert.False(t, pr.Tallies[1].Winner)
	})

	t.Run("no winner with zero ballots", func(t *testing.T) {
		f := newFixture(t, election.StatusVotingClosed)
		f.addCandidate("President", filed)

		result, err := f.svc.Calculate(ctx, commissioner, f.election.ID)
		require.NoError(t, err)
		pr := result.Positions[0]
		assert.Equal(t, 0, pr.BallotsCounted)
		assert.False(t, pr.Tallies[0].Winner)
	})

	t.Run("tallies group by position", func(t *testing.T) {
		f := newFixture(t, election.StatusVotingClosed)
		president := f.addCandidate("President", filed)
		secretary := f.addCandidate("Secretary", filed.Add(time.Minute))
		f.castVotes(t, president, voting.VoteApproved, 2)
		f.castVotes(t, secretary, voting.VoteApproved, 1)

		result, err := f.svc.Calculate(ctx, commissioner, f.election.ID)
		require.NoError(t, err)
		require.Len(t, result.Positions, 2)
		assert.Equal(t, "President", result.Positions[0].Position)
		assert.Equal(t, "Secretary", result.Positions[1].Position)
	})

	t.Run("rejected before voting closes", func(t *testing.T) {
		f := newFixture(t, election.StatusVotingOpen)
		_, err := f.svc.Calculate(ctx, commissioner, f.election.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})

	t.Run("recalculation reflects later adjudication", func(t *testing.T) {
		f := newFixture(t, election.StatusVotingClosed)
		a := f.addCandidate("President", filed)
		f.castVotes(t, a, voting.VoteApproved, 1)

		first, err := f.svc.Calculate(ctx, commissioner, f.election.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Positions[0].BallotsCounted)

		f.castVotes(t, a, voting.VoteApproved, 2)
		second, err := f.svc.Calculate(ctx, commissioner, f.election.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, second.Positions[0].BallotsCounted)
	})
}

func TestCertify(t *testing.T) {
	ctx := context.Background()
	commissioner := uuid.New()
	filed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	prepare := func(t *testing.T, status election.Status) *fixture {
		t.Helper()
		f := newFixture(t, election.StatusVotingClosed)
		a := f.addCandidate("President", filed)
		f.castVotes(t, a, voting.VoteApproved, 5)
		_, err := f.svc.Calculate(ctx, commissioner, f.election.ID)
		require.NoError(t, err)
		f.election.Status = status
		return f
	}

	t.Run("certifies a completed election", func(t *testing.T) {
		f := prepare(t, election.StatusCompleted)

		result, err := f.svc.Certify(ctx, commissioner, f.election.ID)
		require.NoError(t, err)
		assert.True(t, result.IsCertified)
		assert.Equal(t, commissioner, result.CertifiedBy)
		require.NotNil(t, result.CertifiedAt)
	})

	t.Run("certifies straight after voting closes", func(t *testing.T) {
		f := prepare(t, election.StatusVotingClosed)

		result, err := f.svc.Certify(ctx, commissioner, f.election.ID)
		require.NoError(t, err)
		assert.True(t, result.IsCertified)
		assert.Equal(t, commissioner, result.CertifiedBy)
	})

	t.Run("rejected while voting is still open", func(t *testing.T) {
		f := prepare(t, election.StatusVotingOpen)
		_, err := f.svc.Certify(ctx, commissioner, f.election.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})

	t.Run("certifying twice is a conflict", func(t *testing.T) {
		f := prepare(t, election.StatusCompleted)
		_, err := f.svc.Certify(ctx, commissioner, f.election.ID)
		require.NoError(t, err)

		_, err = f.svc.Certify(ctx, commissioner, f.election.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("certification freezes the tally", func(t *testing.T) {
		f := prepare(t, election.StatusCompleted)
		_, err := f.svc.Certify(ctx, commissioner, f.election.ID)
		require.NoError(t, err)

		f.election.Status = election.StatusCompleted
		_, err = f.svc.Calculate(ctx, commissioner, f.election.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("requires an existing tally", func(t *testing.T) {
		f := newFixture(t, election.StatusCompleted)
		_, err := f.svc.Certify(ctx, commissioner, f.election.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
