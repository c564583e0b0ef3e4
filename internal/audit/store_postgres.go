package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore persists audit events append-only. Events are never updated
// or deleted through this store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (category, occurred_at, member_id, election_id, action, subject, decision, reason, request_id, actor_id)
		VALUES ($1, $2, NULLIF($3, '00000000-0000-0000-0000-000000000000'::uuid), NULLIF($4, '00000000-0000-0000-0000-000000000000'::uuid), $5, $6, $7, $8, $9, NULLIF($10, '00000000-0000-0000-0000-000000000000'::uuid))
	`
	_, err := s.db.ExecContext(ctx, query,
		string(event.Category), event.Timestamp, event.MemberID, event.ElectionID,
		event.Action, event.Subject, event.Decision, event.Reason, event.RequestID, event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByElection(ctx context.Context, electionID uuid.UUID) ([]Event, error) {
	query := `
		SELECT category, occurred_at, COALESCE(member_id, '00000000-0000-0000-0000-000000000000'), COALESCE(election_id, '00000000-0000-0000-0000-000000000000'), action, subject, decision, reason, request_id, COALESCE(actor_id, '00000000-0000-0000-0000-000000000000')
		FROM audit_events
		WHERE election_id = $1
		ORDER BY occurred_at
	`
	rows, err := s.db.QueryContext(ctx, query, electionID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var category string
		if err := rows.Scan(&category, &e.Timestamp, &e.MemberID, &e.ElectionID, &e.Action, &e.Subject, &e.Decision, &e.Reason, &e.RequestID, &e.ActorID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = EventCategory(category)
		out = append(out, e)
	}
	return out, rows.Err()
}
