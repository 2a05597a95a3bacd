package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Org represents an organization/tenant.
type Org struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
	// Soft-deletion marker; DeletedAt is nil while the organization is active.
	DeletedAt      *time.Time
	DeletedBy      string
	DeletionReason string
	PurgeAt        *time.Time
}

// Deleted reports whether the organization has been soft-deleted.
func (o *Org) Deleted() bool {
	return o.DeletedAt != nil
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validate validates the organization for persistence. Returns an error describing the first validation failure.
func (o *Org) Validate() error {
	o.Name = strings.TrimSpace(o.Name)
	o.Slug = strings.ToLower(strings.TrimSpace(o.Slug))
	if o.Name == "" {
		return errors.New("name is required")
	}
	if len(o.Name) > 200 {
		return errors.New("name must be at most 200 characters")
	}
	if o.Slug == "" {
		return errors.New("slug is required")
	}
	if len(o.Slug) > 63 || !slugPattern.MatchString(o.Slug) {
		return errors.New("slug must be lowercase letters, digits and single dashes (max 63)")
	}
	return nil
}
