package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sabha/pkg/platform/sentinel"
)

// PostgresStore persists one row per election with the position tallies as
// JSONB. Save and Certify are both conditional on is_certified so a
// certified result can neither be recalculated nor re-certified.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, r *Result) error {
	payload, err := json.Marshal(r.Positions)
	if err != nil {
		return fmt.Errorf("marshal result positions: %w", err)
	}
	query := `
		INSERT INTO election_results (election_id, positions, calculated_at, calculated_by, is_certified)
		VALUES ($1, $2, $3, $4, FALSE)
		ON CONFLICT (election_id)
		DO UPDATE SET positions = EXCLUDED.positions, calculated_at = EXCLUDED.calculated_at, calculated_by = EXCLUDED.calculated_by
		WHERE NOT election_results.is_certified
	`
	res, err := s.db.ExecContext(ctx, query, r.ElectionID, payload, r.CalculatedAt, r.CalculatedBy)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("result is certified: %w", sentinel.ErrInvalidState)
	}
	return nil
}

func (s *PostgresStore) FindByElection(ctx context.Context, electionID uuid.UUID) (*Result, error) {
	query := `
		SELECT election_id, positions, calculated_at, calculated_by, is_certified, certified_at, COALESCE(certified_by, '00000000-0000-0000-0000-000000000000'::uuid)
		FROM election_results
		WHERE election_id = $1
	`
	var r Result
	var payload []byte
	var certifiedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, electionID).Scan(
		&r.ElectionID, &payload, &r.CalculatedAt, &r.CalculatedBy,
		&r.IsCertified, &certifiedAt, &r.CertifiedBy,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("result for election %s: %w", electionID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find result: %w", err)
	}
	if err := json.Unmarshal(payload, &r.Positions); err != nil {
		return nil, fmt.Errorf("unmarshal result positions: %w", err)
	}
	if certifiedAt.Valid {
		t := certifiedAt.Time
		r.CertifiedAt = &t
	}
	return &r, nil
}

func (s *PostgresStore) Certify(ctx context.Context, electionID, certifiedBy uuid.UUID, at time.Time) error {
	query := `
		UPDATE election_results
		SET is_certified = TRUE, certified_by = $2, certified_at = $3
		WHERE election_id = $1 AND NOT is_certified
	`
	res, err := s.db.ExecContext(ctx, query, electionID, certifiedBy, at)
	if err != nil {
		return fmt.Errorf("certify result: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("certify result: %w", err)
	}
	if rows == 0 {
		if _, findErr := s.FindByElection(ctx, electionID); findErr != nil {
			return findErr
		}
		return fmt.Errorf("result is certified: %w", sentinel.ErrConflict)
	}
	return nil
}
