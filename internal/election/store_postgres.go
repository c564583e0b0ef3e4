package election

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"sabha/internal/directory"
	"sabha/pkg/platform/sentinel"
)

// PostgresStore persists elections. TransitionStatus uses a conditional
// UPDATE so concurrent conflicting transitions lose cleanly instead of
// overwriting each other.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, e *Election) error {
	query := `
		INSERT INTO elections (id, level, org_unit_id, election_type, status, nomination_start, nomination_end, voting_start, voting_end, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, string(e.Level), e.OrgUnitID, e.ElectionType, string(e.Status),
		nullTime(e.NominationWindow.Start), nullTime(e.NominationWindow.End),
		nullTime(e.VotingWindow.Start), nullTime(e.VotingWindow.End),
		e.CreatedBy, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("election %s: %w", e.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create election: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*Election, error) {
	query := `
		SELECT id, level, org_unit_id, election_type, status, nomination_start, nomination_end, voting_start, voting_end, created_by, created_at, updated_at
		FROM elections
		WHERE id = $1
	`
	e, err := scanElection(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("election %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find election: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) UpdateWindows(ctx context.Context, id uuid.UUID, nomination, voting Window) error {
	query := `
		UPDATE elections
		SET nomination_start = $2, nomination_end = $3, voting_start = $4, voting_end = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'draft'
	`
	result, err := s.db.ExecContext(ctx, query, id,
		nullTime(nomination.Start), nullTime(nomination.End),
		nullTime(voting.Start), nullTime(voting.End),
	)
	if err != nil {
		return fmt.Errorf("update windows: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update windows rows affected: %w", err)
	}
	if rows == 0 {
		// Either missing or no longer draft; distinguish for the caller.
		if _, ferr := s.FindByID(ctx, id); ferr != nil {
			return ferr
		}
		return fmt.Errorf("windows are frozen after draft: %w", sentinel.ErrInvalidState)
	}
	return nil
}

// TransitionStatus performs the compare-and-set. Zero rows affected with an
// existing election means the stored status did not match expected: a
// concurrent transition won, and the caller gets sentinel.ErrConflict.
func (s *PostgresStore) TransitionStatus(ctx context.Context, id uuid.UUID, expected, next Status, now time.Time) error {
	query := `
		UPDATE elections
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`
	result, err := s.db.ExecContext(ctx, query, id, string(expected), string(next), now)
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition status rows affected: %w", err)
	}
	if rows == 0 {
		current, ferr := s.FindByID(ctx, id)
		if ferr != nil {
			return ferr
		}
		return fmt.Errorf("election %s is %s, expected %s: %w", id, current.Status, expected, sentinel.ErrConflict)
	}
	return nil
}

type electionRow interface {
	Scan(dest ...any) error
}

func scanElection(row electionRow) (*Election, error) {
	var e Election
	var level, status string
	var nomStart, nomEnd, voteStart, voteEnd sql.NullTime
	if err := row.Scan(
		&e.ID, &level, &e.OrgUnitID, &e.ElectionType, &status,
		&nomStart, &nomEnd, &voteStart, &voteEnd,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Level = directory.Level(level)
	e.Status = Status(status)
	e.NominationWindow = Window{Start: nomStart.Time, End: nomEnd.Time}
	e.VotingWindow = Window{Start: voteStart.Time, End: voteEnd.Time}
	return &e, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
