package domain

import (
	"time"

	"records-dashboard/backend/internal/platform/lifecycle"
)

// Transfer is a proposed handoff of the owner role between two members of one organization.
type Transfer struct {
	ID         string
	OrgID      string
	FromUserID string
	ToUserID   string
	// TokenHash is the SHA-256 of the single-use token; the token itself is never stored.
	TokenHash   string
	Status      lifecycle.Status
	Reason      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	AcceptedAt  *time.Time
	CancelledAt *time.Time
}

// DisplayStatus projects the stored status at now, consistent with invitations.
func (t *Transfer) DisplayStatus(now time.Time) lifecycle.DisplayStatus {
	return lifecycle.Project(t.Status, t.ExpiresAt, now)
}

// Active reports whether the transfer is pending and not yet expired at now.
func (t *Transfer) Active(now time.Time) bool {
	return t.DisplayStatus(now) == lifecycle.DisplayPending
}
