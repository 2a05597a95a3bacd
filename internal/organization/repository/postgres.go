package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"records-dashboard/backend/internal/db"
	"records-dashboard/backend/internal/organization/domain"
	"records-dashboard/backend/internal/platform/apperr"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an organization repository that uses the given pool or transaction.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

var _ Repository = (*PostgresRepository)(nil)

const orgColumns = `id, name, slug, created_at, deleted_at, COALESCE(deleted_by, ''), COALESCE(deletion_reason, ''), purge_at`

// GetOrganizationByID returns the active organization for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error) {
	return scanOne(r.db.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1 AND deleted_at IS NULL`, id))
}

// LockOrganization selects the active organization FOR UPDATE.
func (r *PostgresRepository) LockOrganization(ctx context.Context, id string) (*domain.Org, error) {
	return scanOne(r.db.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id))
}

// CreateOrganization persists the organization to the database. The organization must have ID set.
func (r *PostgresRepository) CreateOrganization(ctx context.Context, o *domain.Org) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO organizations (id, name, slug, created_at) VALUES ($1, $2, $3, $4)`,
		o.ID, o.Name, o.Slug, o.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("organization slug %q is already taken", o.Slug)
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

// SoftDeleteOrganization sets the deletion marker columns from o.
func (r *PostgresRepository) SoftDeleteOrganization(ctx context.Context, o *domain.Org) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE organizations SET deleted_at = $2, deleted_by = $3, deletion_reason = NULLIF($4, ''), purge_at = $5
		 WHERE id = $1 AND deleted_at IS NULL`,
		o.ID, o.DeletedAt, o.DeletedBy, o.DeletionReason, o.PurgeAt)
	if err != nil {
		return false, fmt.Errorf("soft delete organization: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PurgeDeleted removes organizations past their purge time. Child rows go with them via ON DELETE CASCADE.
func (r *PostgresRepository) PurgeDeleted(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM organizations WHERE deleted_at IS NOT NULL AND purge_at IS NOT NULL AND purge_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge organizations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOne(row pgx.Row) (*domain.Org, error) {
	var o domain.Org
	if err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt, &o.DeletedAt, &o.DeletedBy, &o.DeletionReason, &o.PurgeAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}
