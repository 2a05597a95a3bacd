package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"records-dashboard/backend/internal/db"
	"records-dashboard/backend/internal/platform/apperr"
	"records-dashboard/backend/internal/platform/lifecycle"
	"records-dashboard/backend/internal/transfer/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a transfer repository that uses the given pool or transaction.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

var _ Repository = (*PostgresRepository)(nil)

const transferColumns = `t.id, t.org_id, t.from_user_id, t.to_user_id, t.token_hash, t.status, COALESCE(t.reason, ''),
	t.created_at, t.expires_at, t.accepted_at, t.cancelled_at`

const activeOrg = `EXISTS (SELECT 1 FROM organizations o WHERE o.id = t.org_id AND o.deleted_at IS NULL)`

// GetTransferByID returns the transfer for id within orgID, or nil if not found.
func (r *PostgresRepository) GetTransferByID(ctx context.Context, orgID, id string) (*domain.Transfer, error) {
	q := `SELECT ` + transferColumns + ` FROM ownership_transfers t WHERE t.org_id = $1 AND t.id = $2 AND ` + activeOrg
	return scanOne(r.db.QueryRow(ctx, q, orgID, id))
}

// GetTransferByTokenHash returns the transfer with the given token hash, or nil if not found.
func (r *PostgresRepository) GetTransferByTokenHash(ctx context.Context, tokenHash string) (*domain.Transfer, error) {
	q := `SELECT ` + transferColumns + ` FROM ownership_transfers t WHERE t.token_hash = $1 AND ` + activeOrg
	return scanOne(r.db.QueryRow(ctx, q, tokenHash))
}

// ListPendingByOrg returns stored-pending transfers for the org, newest first.
func (r *PostgresRepository) ListPendingByOrg(ctx context.Context, orgID string) ([]*domain.Transfer, error) {
	q := `SELECT ` + transferColumns + ` FROM ownership_transfers t WHERE t.org_id = $1 AND t.status = 'pending' AND ` + activeOrg + `
		ORDER BY t.created_at DESC, t.id`
	rows, err := r.db.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Transfer, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTransfer persists the transfer. The transfer must have ID and TokenHash set.
func (r *PostgresRepository) CreateTransfer(ctx context.Context, t *domain.Transfer) error {
	const q = `INSERT INTO ownership_transfers (id, org_id, from_user_id, to_user_id, token_hash, status, reason, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`
	_, err := r.db.Exec(ctx, q, t.ID, t.OrgID, t.FromUserID, t.ToUserID, t.TokenHash, string(t.Status), t.Reason, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("transfer token collision")
		}
		return fmt.Errorf("create transfer: %w", err)
	}
	return nil
}

// MarkAccepted is a conditional update on a pending, unexpired transfer.
func (r *PostgresRepository) MarkAccepted(ctx context.Context, orgID, id string, at time.Time) (bool, error) {
	const q = `UPDATE ownership_transfers SET status = 'accepted', accepted_at = $3
		WHERE org_id = $1 AND id = $2 AND status = 'pending' AND expires_at >= $3`
	tag, err := r.db.Exec(ctx, q, orgID, id, at)
	if err != nil {
		return false, fmt.Errorf("accept transfer: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCancelled sets status cancelled on a pending transfer.
func (r *PostgresRepository) MarkCancelled(ctx context.Context, orgID, id string, at time.Time) (*domain.Transfer, error) {
	q := `UPDATE ownership_transfers t SET status = 'cancelled', cancelled_at = $3
		WHERE t.org_id = $1 AND t.id = $2 AND t.status = 'pending' AND ` + activeOrg + ` RETURNING ` + transferColumns
	return scanOne(r.db.QueryRow(ctx, q, orgID, id, at))
}

func scanOne(row pgx.Row) (*domain.Transfer, error) {
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var t domain.Transfer
	var status string
	err := row.Scan(&t.ID, &t.OrgID, &t.FromUserID, &t.ToUserID, &t.TokenHash, &status, &t.Reason,
		&t.CreatedAt, &t.ExpiresAt, &t.AcceptedAt, &t.CancelledAt)
	if err != nil {
		return nil, err
	}
	t.Status = lifecycle.Status(status)
	return &t, nil
}
