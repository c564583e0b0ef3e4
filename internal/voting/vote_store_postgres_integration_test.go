//go:build integration

package voting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"sabha/pkg/platform/sentinel"
	"sabha/pkg/testutil/containers"
)

type PostgresVoteStoreSuite struct {
	suite.Suite

	postgres *containers.PostgresContainer
	store    *PostgresVoteStore

	electionID   uuid.UUID
	nominationID uuid.UUID
}

func TestPostgresVoteStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresVoteStoreSuite))
}

func (s *PostgresVoteStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = NewPostgresVoteStore(s.postgres.DB)
}

func (s *PostgresVoteStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "votes", "candidates", "elections"))

	s.electionID = uuid.New()
	s.nominationID = uuid.New()
	now := time.Now().UTC()

	_, err := s.postgres.DB.ExecContext(ctx, `
		INSERT INTO elections (id, level, org_unit_id, election_type, status, nomination_start, nomination_end, voting_start, voting_end, created_by, created_at, updated_at)
		VALUES ($1, 'tehsil', $2, 'general', 'voting_open', $3, $3, $3, $4, $5, $3, $3)
	`, s.electionID, uuid.New(), now, now.Add(24*time.Hour), uuid.New())
	s.Require().NoError(err)

	_, err = s.postgres.DB.ExecContext(ctx, `
		INSERT INTO candidates (id, election_id, member_id, position, vision_statement, approval_status, filed_at)
		VALUES ($1, $2, $3, 'president', 'A vision statement long enough for the record.', 'approved', $4)
	`, s.nominationID, s.electionID, uuid.New(), now)
	s.Require().NoError(err)
}

func (s *PostgresVoteStoreSuite) newVote(voterID uuid.UUID) *Vote {
	return &Vote{
		ID:           uuid.New(),
		ElectionID:   s.electionID,
		VoterID:      voterID,
		NominationID: s.nominationID,
		Position:     "president",
		Status:       VotePending,
		LivePhotoRef: "photos/" + uuid.NewString() + ".jpg",
		SubmittedAt:  time.Now().UTC(),
		ClientIP:     "203.0.113.7",
		ClientDevice: "Safari on iOS",
	}
}

func (s *PostgresVoteStoreSuite) TestUniqueBallotPerVoter() {
	ctx := context.Background()
	voterID := uuid.New()

	s.Require().NoError(s.store.Create(ctx, s.newVote(voterID)))

	err := s.store.Create(ctx, s.newVote(voterID))
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrConflict), "second ballot must hit the unique constraint")

	// A different voter is unaffected.
	s.Require().NoError(s.store.Create(ctx, s.newVote(uuid.New())))
}

func (s *PostgresVoteStoreSuite) TestAdjudicationIsFinal() {
	ctx := context.Background()
	vote := s.newVote(uuid.New())
	s.Require().NoError(s.store.Create(ctx, vote))

	adjudicator := uuid.New()
	when := time.Now().UTC()
	vote.Status = VoteApproved
	vote.AdjudicatedAt = &when
	vote.AdjudicatedBy = adjudicator
	s.Require().NoError(s.store.UpdateAdjudication(ctx, vote))

	got, err := s.store.FindByID(ctx, vote.ID)
	s.Require().NoError(err)
	s.Equal(VoteApproved, got.Status)
	s.Equal(adjudicator, got.AdjudicatedBy)
	s.Require().NotNil(got.AdjudicatedAt)

	// A second decision no longer matches the pending guard.
	vote.Status = VoteRejected
	vote.RejectReason = "photo mismatch"
	err = s.store.UpdateAdjudication(ctx, vote)
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrConflict))
}

func (s *PostgresVoteStoreSuite) TestListByStatusOrdersBySubmission() {
	ctx := context.Background()

	first := s.newVote(uuid.New())
	first.SubmittedAt = time.Now().UTC().Add(-2 * time.Minute)
	second := s.newVote(uuid.New())
	second.SubmittedAt = time.Now().UTC().Add(-1 * time.Minute)
	s.Require().NoError(s.store.Create(ctx, second))
	s.Require().NoError(s.store.Create(ctx, first))

	pending, err := s.store.ListByStatus(ctx, s.electionID, VotePending)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(first.ID, pending[0].ID)
	s.Equal(second.ID, pending[1].ID)
}

func (s *PostgresVoteStoreSuite) TestFindByVoterNotFound() {
	_, err := s.store.FindByVoter(context.Background(), s.electionID, uuid.New())
	s.True(errors.Is(err, sentinel.ErrNotFound))
}
