package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"records-dashboard/backend/internal/db"
	"records-dashboard/backend/internal/invitation/domain"
	membershipdomain "records-dashboard/backend/internal/membership/domain"
	"records-dashboard/backend/internal/platform/lifecycle"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an invitation repository that uses the given pool or transaction.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

var _ Repository = (*PostgresRepository)(nil)

const invitationColumns = `i.id, i.org_id, i.email, i.role, i.status, i.inviter_id, i.expires_at, i.created_at, i.updated_at,
	i.accepted_at, COALESCE(i.accepted_by, ''), i.cancelled_at, i.resend_count`

const activeOrg = `EXISTS (SELECT 1 FROM organizations o WHERE o.id = i.org_id AND o.deleted_at IS NULL)`

// GetInvitationByID returns the invitation for id within orgID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetInvitationByID(ctx context.Context, orgID, id string) (*domain.Invitation, error) {
	q := `SELECT ` + invitationColumns + ` FROM org_invitations i WHERE i.org_id = $1 AND i.id = $2 AND ` + activeOrg
	return scanOne(r.db.QueryRow(ctx, q, orgID, id))
}

// ListInvitationsByOrg returns every invitation of the org, newest first.
func (r *PostgresRepository) ListInvitationsByOrg(ctx context.Context, orgID string) ([]*domain.Invitation, error) {
	q := `SELECT ` + invitationColumns + ` FROM org_invitations i WHERE i.org_id = $1 AND ` + activeOrg + ` ORDER BY i.created_at DESC, i.id`
	return r.list(ctx, q, orgID)
}

// ListOutstandingByEmail returns pending invitations for email whose expiry is at or after now.
func (r *PostgresRepository) ListOutstandingByEmail(ctx context.Context, orgID, email string, now time.Time) ([]*domain.Invitation, error) {
	q := `SELECT ` + invitationColumns + ` FROM org_invitations i
		WHERE i.org_id = $1 AND i.email = $2 AND i.status = 'pending' AND i.expires_at >= $3 AND ` + activeOrg + `
		ORDER BY i.created_at DESC, i.id`
	return r.list(ctx, q, orgID, email, now)
}

// CreateInvitation persists the invitation. The invitation must have ID set.
func (r *PostgresRepository) CreateInvitation(ctx context.Context, inv *domain.Invitation) error {
	const q = `INSERT INTO org_invitations (id, org_id, email, role, status, inviter_id, expires_at, created_at, updated_at, resend_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.Exec(ctx, q, inv.ID, inv.OrgID, inv.Email, string(inv.Role), string(inv.Status), inv.InviterID,
		inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt, inv.ResendCount)
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

// UpdateExpiry sets expires_at on a pending invitation and increments resend_count.
func (r *PostgresRepository) UpdateExpiry(ctx context.Context, orgID, id string, expiresAt, at time.Time) (*domain.Invitation, error) {
	q := `UPDATE org_invitations i SET expires_at = $3, updated_at = $4, resend_count = i.resend_count + 1
		WHERE i.org_id = $1 AND i.id = $2 AND i.status = 'pending' AND ` + activeOrg + ` RETURNING ` + invitationColumns
	return scanOne(r.db.QueryRow(ctx, q, orgID, id, expiresAt, at))
}

// MarkCancelled sets status cancelled on a pending invitation.
func (r *PostgresRepository) MarkCancelled(ctx context.Context, orgID, id string, at time.Time) (*domain.Invitation, error) {
	q := `UPDATE org_invitations i SET status = 'cancelled', cancelled_at = $3, updated_at = $3
		WHERE i.org_id = $1 AND i.id = $2 AND i.status = 'pending' AND ` + activeOrg + ` RETURNING ` + invitationColumns
	return scanOne(r.db.QueryRow(ctx, q, orgID, id, at))
}

// MarkAccepted is a conditional update: the row changes only while still pending and unexpired.
func (r *PostgresRepository) MarkAccepted(ctx context.Context, orgID, id, userID string, at time.Time) (bool, error) {
	q := `UPDATE org_invitations i SET status = 'accepted', accepted_at = $4, accepted_by = $3, updated_at = $4
		WHERE i.org_id = $1 AND i.id = $2 AND i.status = 'pending' AND i.expires_at >= $4 AND ` + activeOrg
	tag, err := r.db.Exec(ctx, q, orgID, id, userID, at)
	if err != nil {
		return false, fmt.Errorf("accept invitation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) list(ctx context.Context, q string, args ...any) ([]*domain.Invitation, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanOne(row pgx.Row) (*domain.Invitation, error) {
	inv, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

func scanInvitation(row pgx.Row) (*domain.Invitation, error) {
	var inv domain.Invitation
	var role, status string
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.Email, &role, &status, &inv.InviterID, &inv.ExpiresAt, &inv.CreatedAt,
		&inv.UpdatedAt, &inv.AcceptedAt, &inv.AcceptedBy, &inv.CancelledAt, &inv.ResendCount)
	if err != nil {
		return nil, err
	}
	inv.Role = membershipdomain.Role(role)
	inv.Status = lifecycle.Status(status)
	return &inv, nil
}
