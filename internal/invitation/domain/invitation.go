package domain

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	membershipdomain "records-dashboard/backend/internal/membership/domain"
	"records-dashboard/backend/internal/platform/lifecycle"
)

// Invitation is a pending grant of a role to an email address.
type Invitation struct {
	ID          string
	OrgID       string
	Email       string
	Role        membershipdomain.Role
	Status      lifecycle.Status
	InviterID   string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	AcceptedAt  *time.Time
	AcceptedBy  string
	CancelledAt *time.Time
	ResendCount int
}

// DisplayStatus projects the stored status at now. Every reader must use this rather than Status.
func (i *Invitation) DisplayStatus(now time.Time) lifecycle.DisplayStatus {
	return lifecycle.Project(i.Status, i.ExpiresAt, now)
}

// Outstanding reports whether the invitation still projects as pending at now.
func (i *Invitation) Outstanding(now time.Time) bool {
	return i.DisplayStatus(now) == lifecycle.DisplayPending
}

// NormalizeEmail lowercases and trims email and checks it is a single bare address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errors.New("email is required")
	}
	if len(email) > 254 {
		return "", errors.New("email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", errors.New("email is invalid")
	}
	return email, nil
}

// EmailDomain returns the part after the last '@', or "".
func EmailDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return email[i+1:]
}
