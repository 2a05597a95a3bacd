package repository

import (
	"context"
	"time"

	"records-dashboard/backend/internal/organization/domain"
)

// Repository defines persistence for organizations. Soft-deleted organizations are invisible to reads.
type Repository interface {
	GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error)
	// LockOrganization is GetOrganizationByID plus a row lock held until the surrounding transaction ends.
	LockOrganization(ctx context.Context, id string) (*domain.Org, error)
	// CreateOrganization returns a Conflict error when the slug is taken.
	CreateOrganization(ctx context.Context, o *domain.Org) error
	// SoftDeleteOrganization marks the organization deleted and reports whether an active row was changed.
	SoftDeleteOrganization(ctx context.Context, o *domain.Org) (bool, error)
	// PurgeDeleted hard-deletes soft-deleted organizations whose purge time is at or before now.
	PurgeDeleted(ctx context.Context, now time.Time) (int64, error)
}
