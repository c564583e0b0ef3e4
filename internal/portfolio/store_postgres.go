package portfolio

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"sabha/internal/directory"
	"sabha/pkg/platform/sentinel"
)

// PostgresStore persists portfolios, permissions and assignments in
// PostgreSQL. Pure I/O; conflict-of-interest rules live in the service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SavePortfolio(ctx context.Context, p *Portfolio) error {
	query := `
		INSERT INTO portfolios (id, code, name, level, type, authority_rank, parent_id, conflict_flags)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '00000000-0000-0000-0000-000000000000'::uuid), $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			authority_rank = EXCLUDED.authority_rank,
			conflict_flags = EXCLUDED.conflict_flags
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Code, p.Name, string(p.Level), string(p.Type), p.AuthorityRank, p.ParentID, pq.Array(p.ConflictFlags),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("portfolio code %q: %w", p.Code, sentinel.ErrConflict)
		}
		return fmt.Errorf("save portfolio: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindPortfolio(ctx context.Context, id uuid.UUID) (*Portfolio, error) {
	query := `
		SELECT id, code, name, level, type, authority_rank, COALESCE(parent_id, '00000000-0000-0000-0000-000000000000'), conflict_flags
		FROM portfolios
		WHERE id = $1
	`
	p, err := scanPortfolio(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("portfolio %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find portfolio: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) SavePermission(ctx context.Context, perm *Permission) error {
	query := `
		INSERT INTO portfolio_permissions (portfolio_id, permission_key, resource_type, capability, level)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (portfolio_id, permission_key, resource_type, level) DO UPDATE SET
			capability = EXCLUDED.capability
	`
	_, err := s.db.ExecContext(ctx, query,
		perm.PortfolioID, perm.PermissionKey, perm.ResourceType, int(perm.Capability), string(perm.Level),
	)
	if err != nil {
		return fmt.Errorf("save permission: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindGrant(ctx context.Context, portfolioIDs []uuid.UUID, permissionKey, resourceType string, level directory.Level) (*Permission, error) {
	query := `
		SELECT portfolio_id, permission_key, resource_type, capability, level
		FROM portfolio_permissions
		WHERE portfolio_id = ANY($1)
		  AND permission_key = $2
		  AND resource_type = $3
		  AND level = $4
		ORDER BY capability DESC
		LIMIT 1
	`
	var perm Permission
	var cap int
	var lvl string
	err := s.db.QueryRowContext(ctx, query, pq.Array(portfolioIDs), permissionKey, resourceType, string(level)).
		Scan(&perm.PortfolioID, &perm.PermissionKey, &perm.ResourceType, &cap, &lvl)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("grant %s/%s at %s: %w", permissionKey, resourceType, level, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find grant: %w", err)
	}
	perm.Capability = Capability(cap)
	perm.Level = directory.Level(lvl)
	return &perm, nil
}

func (s *PostgresStore) CreateAssignment(ctx context.Context, a *Assignment) error {
	query := `
		INSERT INTO portfolio_assignments (id, member_id, portfolio_id, org_unit_id, active, assigned_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.MemberID, a.PortfolioID, a.OrgUnitID, a.Active, a.AssignedAt, a.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveAssignments(ctx context.Context, memberID uuid.UUID) ([]AssignmentWithPortfolio, error) {
	query := `
		SELECT a.id, a.member_id, a.portfolio_id, a.org_unit_id, a.active, a.assigned_at, a.ended_at,
		       p.id, p.code, p.name, p.level, p.type, p.authority_rank, COALESCE(p.parent_id, '00000000-0000-0000-0000-000000000000'), p.conflict_flags
		FROM portfolio_assignments a
		JOIN portfolios p ON p.id = a.portfolio_id
		WHERE a.member_id = $1 AND a.active
	`
	rows, err := s.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("active assignments: %w", err)
	}
	defer rows.Close()

	var out []AssignmentWithPortfolio
	for rows.Next() {
		var item AssignmentWithPortfolio
		var level, typ string
		var flags pq.StringArray
		var endedAt sql.NullTime
		if err := rows.Scan(
			&item.Assignment.ID, &item.Assignment.MemberID, &item.Assignment.PortfolioID,
			&item.Assignment.OrgUnitID, &item.Assignment.Active, &item.Assignment.AssignedAt, &endedAt,
			&item.Portfolio.ID, &item.Portfolio.Code, &item.Portfolio.Name, &level, &typ,
			&item.Portfolio.AuthorityRank, &item.Portfolio.ParentID, &flags,
		); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		if endedAt.Valid {
			item.Assignment.EndedAt = &endedAt.Time
		}
		item.Portfolio.Level = directory.Level(level)
		item.Portfolio.Type = Type(typ)
		item.Portfolio.ConflictFlags = flags
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ActiveHolders(ctx context.Context, typ Type, level directory.Level, orgUnitID uuid.UUID) ([]Assignment, error) {
	query := `
		SELECT a.id, a.member_id, a.portfolio_id, a.org_unit_id, a.active, a.assigned_at, a.ended_at
		FROM portfolio_assignments a
		JOIN portfolios p ON p.id = a.portfolio_id
		WHERE a.active AND p.type = $1 AND p.level = $2
		  AND ($3::uuid IS NULL OR a.org_unit_id = $3)
	`
	var unitArg any
	if orgUnitID != uuid.Nil {
		unitArg = orgUnitID
	}
	rows, err := s.db.QueryContext(ctx, query, string(typ), string(level), unitArg)
	if err != nil {
		return nil, fmt.Errorf("active holders: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		var endedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.MemberID, &a.PortfolioID, &a.OrgUnitID, &a.Active, &a.AssignedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan holder: %w", err)
		}
		if endedAt.Valid {
			a.EndedAt = &endedAt.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListActiveAssignments(ctx context.Context) ([]AssignmentWithPortfolio, error) {
	query := `
		SELECT a.id, a.member_id, a.portfolio_id, a.org_unit_id, a.active, a.assigned_at, a.ended_at,
		       p.id, p.code, p.name, p.level, p.type, p.authority_rank, COALESCE(p.parent_id, '00000000-0000-0000-0000-000000000000'), p.conflict_flags
		FROM portfolio_assignments a
		JOIN portfolios p ON p.id = a.portfolio_id
		WHERE a.active
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active assignments: %w", err)
	}
	defer rows.Close()

	var out []AssignmentWithPortfolio
	for rows.Next() {
		var item AssignmentWithPortfolio
		var level, typ string
		var flags pq.StringArray
		var endedAt sql.NullTime
		if err := rows.Scan(
			&item.Assignment.ID, &item.Assignment.MemberID, &item.Assignment.PortfolioID,
			&item.Assignment.OrgUnitID, &item.Assignment.Active, &item.Assignment.AssignedAt, &endedAt,
			&item.Portfolio.ID, &item.Portfolio.Code, &item.Portfolio.Name, &level, &typ,
			&item.Portfolio.AuthorityRank, &item.Portfolio.ParentID, &flags,
		); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		if endedAt.Valid {
			item.Assignment.EndedAt = &endedAt.Time
		}
		item.Portfolio.Level = directory.Level(level)
		item.Portfolio.Type = Type(typ)
		item.Portfolio.ConflictFlags = flags
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *PostgresStore) EndAssignment(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE portfolio_assignments SET active = FALSE, ended_at = NOW() WHERE id = $1 AND active
	`, id)
	if err != nil {
		return fmt.Errorf("end assignment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("end assignment rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("assignment %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

type portfolioRow interface {
	Scan(dest ...any) error
}

func scanPortfolio(row portfolioRow) (*Portfolio, error) {
	var p Portfolio
	var level, typ string
	var flags pq.StringArray
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &level, &typ, &p.AuthorityRank, &p.ParentID, &flags); err != nil {
		return nil, err
	}
	p.Level = directory.Level(level)
	p.Type = Type(typ)
	p.ConflictFlags = flags
	return &p, nil
}

// isUniqueViolation detects PostgreSQL error 23505 so stores can surface
// sentinel.ErrConflict instead of a driver error.
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
