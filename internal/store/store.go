// Package store groups the repositories and runs multi-write operations atomically.
package store

import (
	"context"

	auditrepo "records-dashboard/backend/internal/audit/repository"
	invitationrepo "records-dashboard/backend/internal/invitation/repository"
	membershiprepo "records-dashboard/backend/internal/membership/repository"
	orgrepo "records-dashboard/backend/internal/organization/repository"
	transferrepo "records-dashboard/backend/internal/transfer/repository"
)

// Repos is one consistent set of repositories: either the pool-backed set or the set bound to a transaction.
type Repos struct {
	Orgs        orgrepo.Repository
	Members     membershiprepo.Repository
	Invitations invitationrepo.Repository
	Transfers   transferrepo.Repository
	Audit       auditrepo.Repository
}

// Store is the persistence boundary used by the services.
type Store interface {
	// Repos returns repositories that run each call on its own.
	Repos() Repos
	// WithinTx runs fn against transaction-bound repositories. fn returning an error rolls everything back.
	WithinTx(ctx context.Context, fn func(Repos) error) error
	Ping(ctx context.Context) error
}
