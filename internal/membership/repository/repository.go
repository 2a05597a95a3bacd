package repository

import (
	"context"

	"records-dashboard/backend/internal/membership/domain"
)

// Repository defines persistence for memberships. Every method is scoped to one organization,
// and memberships of soft-deleted organizations are never returned.
type Repository interface {
	// GetMembershipByID returns the membership, or nil if it is not in orgID.
	GetMembershipByID(ctx context.Context, orgID, id string) (*domain.Membership, error)
	// GetMembershipByUserAndOrg returns the user's membership, or nil if not a member.
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
	ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error)
	// CreateMembership returns a Conflict error when the user is already a member.
	CreateMembership(ctx context.Context, m *domain.Membership) error
	// UpdateRole returns the updated membership, or nil if it is not in orgID.
	UpdateRole(ctx context.Context, orgID, id string, role domain.Role) (*domain.Membership, error)
	// DeleteMembership hard-deletes the membership and reports whether a row was removed.
	DeleteMembership(ctx context.Context, orgID, id string) (bool, error)
	// CountOwnersByOrg counts owners. Inside a transaction the owner rows stay locked until commit,
	// so a last-owner check made with it holds at commit time.
	CountOwnersByOrg(ctx context.Context, orgID string) (int, error)
}
