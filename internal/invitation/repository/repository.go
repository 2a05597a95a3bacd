package repository

import (
	"context"
	"time"

	"records-dashboard/backend/internal/invitation/domain"
)

// Repository defines persistence for invitations. Stored status only ever moves out of pending
// through the conditional Mark* methods; expiry is never written as a status.
type Repository interface {
	GetInvitationByID(ctx context.Context, orgID, id string) (*domain.Invitation, error)
	ListInvitationsByOrg(ctx context.Context, orgID string) ([]*domain.Invitation, error)
	// ListOutstandingByEmail returns pending invitations for email in orgID that have not expired at now.
	ListOutstandingByEmail(ctx context.Context, orgID, email string, now time.Time) ([]*domain.Invitation, error)
	CreateInvitation(ctx context.Context, inv *domain.Invitation) error
	// UpdateExpiry resets the expiry of a pending invitation and bumps its resend count.
	// Returns nil when the invitation is missing or no longer pending.
	UpdateExpiry(ctx context.Context, orgID, id string, expiresAt, at time.Time) (*domain.Invitation, error)
	// MarkCancelled moves a pending invitation to cancelled. Returns nil when it was not pending.
	MarkCancelled(ctx context.Context, orgID, id string, at time.Time) (*domain.Invitation, error)
	// MarkAccepted moves a pending, unexpired invitation to accepted and reports whether it did.
	// Of two concurrent callers at most one observes true.
	MarkAccepted(ctx context.Context, orgID, id, userID string, at time.Time) (bool, error)
}
