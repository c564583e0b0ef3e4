package nomination

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"sabha/pkg/platform/sentinel"
)

// PostgresStore persists nominations. The candidates table carries a
// UNIQUE (election_id, member_id, position) constraint; duplicate filings
// surface as sentinel.ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, n *Nomination) error {
	query := `
		INSERT INTO candidates (id, election_id, member_id, position, vision_statement, approval_status, reject_reason, filed_at, decided_at, decided_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, '00000000-0000-0000-0000-000000000000')::uuid)
	`
	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.ElectionID, n.MemberID, n.Position, n.VisionStatement,
		string(n.Status), n.RejectReason, n.FiledAt, n.DecidedAt, n.DecidedBy.String(),
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("nomination already filed for this position: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create nomination: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*Nomination, error) {
	query := selectColumns + ` WHERE id = $1`
	n, err := scanNomination(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("nomination %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find nomination: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Update(ctx context.Context, n *Nomination) error {
	query := `
		UPDATE candidates
		SET approval_status = $2, reject_reason = $3, decided_at = $4, decided_by = NULLIF($5, '00000000-0000-0000-0000-000000000000')::uuid
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, n.ID, string(n.Status), n.RejectReason, n.DecidedAt, n.DecidedBy.String())
	if err != nil {
		return fmt.Errorf("update nomination: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update nomination: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("nomination %s: %w", n.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListByElection(ctx context.Context, electionID uuid.UUID) ([]*Nomination, error) {
	query := selectColumns + ` WHERE election_id = $1 ORDER BY filed_at, id`
	return s.queryList(ctx, query, electionID)
}

func (s *PostgresStore) ListApproved(ctx context.Context, electionID uuid.UUID) ([]*Nomination, error) {
	query := selectColumns + ` WHERE election_id = $1 AND approval_status = 'approved' ORDER BY filed_at, id`
	return s.queryList(ctx, query, electionID)
}

func (s *PostgresStore) queryList(ctx context.Context, query string, args ...any) ([]*Nomination, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list nominations: %w", err)
	}
	defer rows.Close()

	var out []*Nomination
	for rows.Next() {
		n, err := scanNomination(rows)
		if err != nil {
			return nil, fmt.Errorf("scan nomination: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

const selectColumns = `
	SELECT id, election_id, member_id, position, vision_statement, approval_status, reject_reason, filed_at, decided_at, COALESCE(decided_by, '00000000-0000-0000-0000-000000000000'::uuid)
	FROM candidates
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNomination(row rowScanner) (*Nomination, error) {
	var n Nomination
	var status string
	var decidedAt sql.NullTime
	if err := row.Scan(
		&n.ID, &n.ElectionID, &n.MemberID, &n.Position, &n.VisionStatement,
		&status, &n.RejectReason, &n.FiledAt, &decidedAt, &n.DecidedBy,
	); err != nil {
		return nil, err
	}
	n.Status = ApprovalStatus(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		n.DecidedAt = &t
	}
	return &n, nil
}
