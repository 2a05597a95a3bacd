package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"records-dashboard/backend/internal/db"
	"records-dashboard/backend/internal/membership/domain"
	"records-dashboard/backend/internal/platform/apperr"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a membership repository that uses the given pool or transaction.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

var _ Repository = (*PostgresRepository)(nil)

const memberColumns = `m.id, m.org_id, m.user_id, m.email, m.display_name, m.role, COALESCE(m.status, ''), m.created_at`

// activeOrg restricts a query aliased m to organizations that are not soft-deleted.
const activeOrg = `EXISTS (SELECT 1 FROM organizations o WHERE o.id = m.org_id AND o.deleted_at IS NULL)`

// GetMembershipByID returns the membership for id within orgID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetMembershipByID(ctx context.Context, orgID, id string) (*domain.Membership, error) {
	q := `SELECT ` + memberColumns + ` FROM org_members m WHERE m.org_id = $1 AND m.id = $2 AND ` + activeOrg
	return scanOne(r.db.QueryRow(ctx, q, orgID, id))
}

// GetMembershipByUserAndOrg returns the membership for the given user and org, or nil if not found.
func (r *PostgresRepository) GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error) {
	q := `SELECT ` + memberColumns + ` FROM org_members m WHERE m.org_id = $1 AND m.user_id = $2 AND ` + activeOrg
	return scanOne(r.db.QueryRow(ctx, q, orgID, userID))
}

// ListMembershipsByOrg returns all memberships for the given org, oldest first.
func (r *PostgresRepository) ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error) {
	q := `SELECT ` + memberColumns + ` FROM org_members m WHERE m.org_id = $1 AND ` + activeOrg + ` ORDER BY m.created_at, m.id`
	rows, err := r.db.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Membership, 0)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateMembership persists the membership. The membership must have ID set.
func (r *PostgresRepository) CreateMembership(ctx context.Context, m *domain.Membership) error {
	const q = `INSERT INTO org_members (id, org_id, user_id, email, display_name, role, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`
	_, err := r.db.Exec(ctx, q, m.ID, m.OrgID, m.UserID, m.Email, m.DisplayName, string(m.Role), string(m.Status), m.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("user is already a member of this organization")
		}
		if db.IsForeignKeyViolation(err) {
			return apperr.NotFound("organization not found")
		}
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

// UpdateRole sets the role of the membership and returns the updated record, or nil if not found.
func (r *PostgresRepository) UpdateRole(ctx context.Context, orgID, id string, role domain.Role) (*domain.Membership, error) {
	q := `UPDATE org_members m SET role = $3 WHERE m.org_id = $1 AND m.id = $2 AND ` + activeOrg + ` RETURNING ` + memberColumns
	return scanOne(r.db.QueryRow(ctx, q, orgID, id, string(role)))
}

// DeleteMembership removes the membership row.
func (r *PostgresRepository) DeleteMembership(ctx context.Context, orgID, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM org_members m WHERE m.org_id = $1 AND m.id = $2 AND `+activeOrg, orgID, id)
	if err != nil {
		return false, fmt.Errorf("delete membership: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountOwnersByOrg locks the org's owner rows (FOR UPDATE) and counts them.
// Aggregates cannot take row locks, so the rows are selected and counted here.
func (r *PostgresRepository) CountOwnersByOrg(ctx context.Context, orgID string) (int, error) {
	q := `SELECT m.id FROM org_members m WHERE m.org_id = $1 AND m.role = 'owner' AND ` + activeOrg + ` FOR UPDATE OF m`
	rows, err := r.db.Query(ctx, q, orgID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

func scanOne(row pgx.Row) (*domain.Membership, error) {
	m, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func scanMembership(row pgx.Row) (*domain.Membership, error) {
	var m domain.Membership
	var role, status string
	if err := row.Scan(&m.ID, &m.OrgID, &m.UserID, &m.Email, &m.DisplayName, &role, &status, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Role = domain.Role(role)
	m.Status = domain.Status(status)
	return &m, nil
}
