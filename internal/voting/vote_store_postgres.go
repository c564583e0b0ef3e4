package voting

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"sabha/pkg/platform/sentinel"
	"sabha/pkg/platform/tx"
)

// PostgresVoteStore persists ballots. The votes table carries a
// UNIQUE (election_id, voter_id) constraint; the database, not the service,
// is the last line against double voting. Writes go through tx.Resolve so a
// surrounding transaction (session consume + insert) is honored.
type PostgresVoteStore struct {
	db *sql.DB
}

func NewPostgresVoteStore(db *sql.DB) *PostgresVoteStore {
	return &PostgresVoteStore{db: db}
}

func (s *PostgresVoteStore) Create(ctx context.Context, v *Vote) error {
	query := `
		INSERT INTO votes (id, election_id, voter_id, nomination_id, position, status, live_photo_ref, submitted_at, client_ip, client_device)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.Resolve(ctx, s.db).ExecContext(ctx, query,
		v.ID, v.ElectionID, v.VoterID, v.NominationID, v.Position,
		string(v.Status), v.LivePhotoRef, v.SubmittedAt, v.ClientIP, v.ClientDevice,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("vote already recorded for this voter: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create vote: %w", err)
	}
	return nil
}

func (s *PostgresVoteStore) FindByID(ctx context.Context, id uuid.UUID) (*Vote, error) {
	query := voteColumns + ` WHERE id = $1`
	v, err := scanVote(tx.Resolve(ctx, s.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("vote %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find vote: %w", err)
	}
	return v, nil
}

func (s *PostgresVoteStore) FindByVoter(ctx context.Context, electionID, voterID uuid.UUID) (*Vote, error) {
	query := voteColumns + ` WHERE election_id = $1 AND voter_id = $2`
	v, err := scanVote(tx.Resolve(ctx, s.db).QueryRowContext(ctx, query, electionID, voterID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("vote for voter %s: %w", voterID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find vote: %w", err)
	}
	return v, nil
}

func (s *PostgresVoteStore) UpdateAdjudication(ctx context.Context, v *Vote) error {
	query := `
		UPDATE votes
		SET status = $2, adjudicated_at = $3, adjudicated_by = NULLIF($4, '00000000-0000-0000-0000-000000000000')::uuid, reject_reason = $5
		WHERE id = $1 AND status = 'pending'
	`
	res, err := tx.Resolve(ctx, s.db).ExecContext(ctx, query,
		v.ID, string(v.Status), v.AdjudicatedAt, v.AdjudicatedBy.String(), v.RejectReason,
	)
	if err != nil {
		return fmt.Errorf("update vote adjudication: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update vote adjudication: %w", err)
	}
	if rows == 0 {
		// Either the vote is gone or someone adjudicated it first.
		if _, findErr := s.FindByID(ctx, v.ID); findErr != nil {
			return findErr
		}
		return fmt.Errorf("vote %s already adjudicated: %w", v.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresVoteStore) ListByStatus(ctx context.Context, electionID uuid.UUID, status VoteStatus) ([]*Vote, error) {
	query := voteColumns + ` WHERE election_id = $1 AND status = $2 ORDER BY submitted_at, id`
	rows, err := tx.Resolve(ctx, s.db).QueryContext(ctx, query, electionID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var out []*Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const voteColumns = `
	SELECT id, election_id, voter_id, nomination_id, position, status, live_photo_ref, submitted_at, adjudicated_at, COALESCE(adjudicated_by, '00000000-0000-0000-0000-000000000000'::uuid), reject_reason, client_ip, client_device
	FROM votes
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVote(row rowScanner) (*Vote, error) {
	var v Vote
	var status string
	var adjudicatedAt sql.NullTime
	if err := row.Scan(
		&v.ID, &v.ElectionID, &v.VoterID, &v.NominationID, &v.Position,
		&status, &v.LivePhotoRef, &v.SubmittedAt, &adjudicatedAt, &v.AdjudicatedBy,
		&v.RejectReason, &v.ClientIP, &v.ClientDevice,
	); err != nil {
		return nil, err
	}
	v.Status = VoteStatus(status)
	if adjudicatedAt.Valid {
		t := adjudicatedAt.Time
		v.AdjudicatedAt = &t
	}
	return &v, nil
}
