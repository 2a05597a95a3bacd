package domain

import (
	"fmt"
	"strings"
	"time"
)

// Membership links a user to an organization with a role.
type Membership struct {
	ID          string
	OrgID       string
	UserID      string
	Email       string
	DisplayName string
	Role        Role
	// Status is optional in storage; use EffectiveStatus for display.
	Status    Status
	CreatedAt time.Time
}

// EffectiveStatus returns the stored status, defaulting to active when unset.
func (m *Membership) EffectiveStatus() Status {
	if m.Status == "" {
		return StatusActive
	}
	return m.Status
}

// Role is a closed, ordered set of organization roles. Use ParseRole to build one from input.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// Roles lists every membership role from most to least privileged.
var Roles = []Role{RoleOwner, RoleAdmin, RoleManager, RoleMember}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager, RoleMember:
		return true
	}
	return false
}

// ParseRole converts s (case-insensitive, surrounding space ignored) to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Actor is the authenticated caller as reported by the authentication collaborator.
type Actor struct {
	UserID      string
	DisplayName string
	Email       string
}
