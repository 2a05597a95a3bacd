// Package rbac holds the organization role lattice and the authorization rules built on it.
// Everything here is pure except RequireOrgMember, which resolves the caller's membership.
package rbac

import (
	"records-dashboard/backend/internal/membership/domain"
	"records-dashboard/backend/internal/platform/apperr"
)

// Level returns the rank of r: owner 3, admin 2, manager 1, member 0. Unknown roles rank -1.
func Level(r domain.Role) int {
	switch r {
	case domain.RoleOwner:
		return 3
	case domain.RoleAdmin:
		return 2
	case domain.RoleManager:
		return 1
	case domain.RoleMember:
		return 0
	default:
		return -1
	}
}

// CanManage reports whether an actor holding actor may change or remove a member holding target.
// True iff actor strictly outranks target.
func CanManage(actor, target domain.Role) bool {
	if !actor.Valid() || !target.Valid() {
		return false
	}
	return Level(actor) > Level(target)
}

// AssignableRoles returns the roles actor may grant to others, most privileged first.
// Owner is never grantable here; it only moves through an ownership transfer.
// An actor who outranks nobody grants nothing.
func AssignableRoles(actor domain.Role) []domain.Role {
	if Level(actor) <= Level(domain.RoleMember) {
		return nil
	}
	out := make([]domain.Role, 0, len(domain.Roles))
	for _, r := range domain.Roles {
		if r == domain.RoleOwner {
			continue
		}
		if Level(r) <= Level(actor) {
			out = append(out, r)
		}
	}
	return out
}

// CanAssign reports whether role is in AssignableRoles(actor).
func CanAssign(actor, role domain.Role) bool {
	for _, r := range AssignableRoles(actor) {
		if r == role {
			return true
		}
	}
	return false
}

// InvitationRoles is the three-role lattice offered by invitations.
func InvitationRoles() []domain.Role {
	return []domain.Role{domain.RoleOwner, domain.RoleAdmin, domain.RoleMember}
}

// IsInvitationRole reports whether r may appear on an invitation.
func IsInvitationRole(r domain.Role) bool {
	for _, ir := range InvitationRoles() {
		if ir == r {
			return true
		}
	}
	return false
}

// InvitableRoles returns the invitation roles actor may offer.
func InvitableRoles(actor domain.Role) []domain.Role {
	var out []domain.Role
	for _, r := range InvitationRoles() {
		if CanAssign(actor, r) {
			out = append(out, r)
		}
	}
	return out
}

// AuthorizeRoleChange applies the self-action rule, CanManage, and CanAssign for a role change.
// The last-owner invariant is checked by the caller under a lock.
func AuthorizeRoleChange(actor, target *domain.Membership, newRole domain.Role) error {
	if actor.ID == target.ID || actor.UserID == target.UserID {
		return apperr.New(apperr.KindSelfActionDenied, "you cannot change your own role")
	}
	if !CanManage(actor.Role, target.Role) {
		return apperr.Forbidden("role %s cannot manage a member with role %s", actor.Role, target.Role)
	}
	if !CanAssign(actor.Role, newRole) {
		return apperr.Forbidden("role %s cannot grant role %s", actor.Role, newRole)
	}
	return nil
}

// AuthorizeRemoval applies the self-action rule and the owner-removal rule for a removal.
// Owners may remove other owners; otherwise the actor must strictly outrank the target.
func AuthorizeRemoval(actor, target *domain.Membership) error {
	if actor.ID == target.ID || actor.UserID == target.UserID {
		return apperr.New(apperr.KindSelfActionDenied, "you cannot remove yourself from the organization")
	}
	if target.Role == domain.RoleOwner {
		if actor.Role != domain.RoleOwner {
			return apperr.Forbidden("only an owner can remove another owner")
		}
		return nil
	}
	if !CanManage(actor.Role, target.Role) {
		return apperr.Forbidden("role %s cannot remove a member with role %s", actor.Role, target.Role)
	}
	return nil
}
