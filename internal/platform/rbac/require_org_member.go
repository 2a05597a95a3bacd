package rbac

import (
	"context"

	"records-dashboard/backend/internal/membership/domain"
	"records-dashboard/backend/internal/platform/apperr"
)

// OrgMembershipGetter returns a user's membership in an org, or nil if the user is not a member.
type OrgMembershipGetter interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
}

// RequireOrgMember resolves the caller's membership in orgID (any role).
// Returns Forbidden when the user is not a member and Unavailable on store failure.
func RequireOrgMember(ctx context.Context, getter OrgMembershipGetter, orgID, userID string) (*domain.Membership, error) {
	if orgID == "" || userID == "" {
		return nil, apperr.Forbidden("organization and user context required")
	}
	m, err := getter.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to resolve membership")
	}
	if m == nil {
		return nil, apperr.Forbidden("not a member of this organization")
	}
	return m, nil
}

// RequireOrgRole is RequireOrgMember plus a minimum role.
func RequireOrgRole(ctx context.Context, getter OrgMembershipGetter, orgID, userID string, min domain.Role) (*domain.Membership, error) {
	m, err := RequireOrgMember(ctx, getter, orgID, userID)
	if err != nil {
		return nil, err
	}
	if Level(m.Role) < Level(min) {
		return nil, apperr.Forbidden("organization %s or higher required", min)
	}
	return m, nil
}
