package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"records-dashboard/backend/internal/audit"
	auditdomain "records-dashboard/backend/internal/audit/domain"
	membershipdomain "records-dashboard/backend/internal/membership/domain"
	"records-dashboard/backend/internal/organization/domain"
	"records-dashboard/backend/internal/platform/apperr"
	"records-dashboard/backend/internal/platform/rbac"
	"records-dashboard/backend/internal/store"
	apptrace "records-dashboard/backend/internal/telemetry/otel"
)

// DefaultPurgeAfter is how long a soft-deleted organization is retained before it may be purged.
const DefaultPurgeAfter = 30 * 24 * time.Hour

// Created is a new organization and the creator's owner membership.
type Created struct {
	Org   *domain.Org
	Owner *membershipdomain.Membership
}

// Service manages the organization row itself: creation, lookup, soft deletion, and purge.
type Service struct {
	store      store.Store
	audit      audit.Sink
	purgeAfter time.Duration
	now        func() time.Time
}

// NewService returns an organization Service. sink may be nil; purgeAfter <= 0 selects DefaultPurgeAfter.
func NewService(st store.Store, sink audit.Sink, purgeAfter time.Duration) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if purgeAfter <= 0 {
		purgeAfter = DefaultPurgeAfter
	}
	return &Service{store: st, audit: sink, purgeAfter: purgeAfter, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts the organization and makes creator its owner in the same transaction.
func (s *Service) Create(ctx context.Context, name, slug string, creator membershipdomain.Actor) (out *Created, err error) {
	ctx, end := apptrace.StartSpan(ctx, "organization.Create", attribute.String("slug", slug))
	defer func() { end(err) }()

	if creator.UserID == "" {
		return nil, apperr.Forbidden("authentication required")
	}
	now := s.now()
	org := &domain.Org{ID: uuid.New().String(), Name: name, Slug: slug, CreatedAt: now}
	if err := org.Validate(); err != nil {
		return nil, apperr.InvalidArgument("%s", err.Error())
	}
	owner := &membershipdomain.Membership{
		ID:          uuid.New().String(),
		OrgID:       org.ID,
		UserID:      creator.UserID,
		Email:       strings.ToLower(strings.TrimSpace(creator.Email)),
		DisplayName: creator.DisplayName,
		Role:        membershipdomain.RoleOwner,
		Status:      membershipdomain.StatusActive,
		CreatedAt:   now,
	}
	err = s.store.WithinTx(ctx, func(r store.Repos) error {
		if err := r.Orgs.CreateOrganization(ctx, org); err != nil {
			return err
		}
		return r.Members.CreateMembership(ctx, owner)
	})
	if err != nil {
		return nil, apperr.Classify(err, "create organization")
	}
	s.audit.Record(ctx, auditdomain.Event{
		OrgID: org.ID, ActorID: creator.UserID, Action: audit.ActionOrgCreated,
		TargetType: auditdomain.TargetOrganization, TargetID: org.ID, Timestamp: now,
		Metadata: map[string]string{"slug": org.Slug},
	})
	return &Created{Org: org, Owner: owner}, nil
}

// Get returns the organization. The actor must be a member; a soft-deleted organization is NotFound.
func (s *Service) Get(ctx context.Context, orgID string, actor membershipdomain.Actor) (*domain.Org, error) {
	repos := s.store.Repos()
	org, err := repos.Orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to load organization")
	}
	if org == nil {
		return nil, apperr.NotFound("organization %q not found", orgID)
	}
	if _, err := rbac.RequireOrgMember(ctx, repos.Members, orgID, actor.UserID); err != nil {
		return nil, err
	}
	return org, nil
}

// SoftDelete marks the organization deleted and schedules its purge. Only an owner may delete.
// Members, invitations, and transfers become invisible immediately and are removed by Purge.
func (s *Service) SoftDelete(ctx context.Context, orgID string, actor membershipdomain.Actor, reason string) (out *domain.Org, err error) {
	ctx, end := apptrace.StartSpan(ctx, "organization.SoftDelete", attribute.String("org_id", orgID))
	defer func() { end(err) }()

	reason = strings.TrimSpace(reason)
	if len(reason) > 1000 {
		return nil, apperr.InvalidArgument("reason must be at most 1000 characters")
	}
	now := s.now()
	err = s.store.WithinTx(ctx, func(r store.Repos) error {
		org, err := r.Orgs.LockOrganization(ctx, orgID)
		if err != nil {
			return err
		}
		if org == nil {
			return apperr.NotFound("organization %q not found", orgID)
		}
		if _, err := rbac.RequireOrgRole(ctx, r.Members, orgID, actor.UserID, membershipdomain.RoleOwner); err != nil {
			return err
		}
		deletedAt, purgeAt := now, now.Add(s.purgeAfter)
		org.DeletedAt = &deletedAt
		org.DeletedBy = actor.UserID
		org.DeletionReason = reason
		org.PurgeAt = &purgeAt
		changed, err := r.Orgs.SoftDeleteOrganization(ctx, org)
		if err != nil {
			return err
		}
		if !changed {
			return apperr.NotFound("organization %q not found", orgID)
		}
		out = org
		return nil
	})
	if err != nil {
		return nil, apperr.Classify(err, "delete organization")
	}
	s.audit.Record(ctx, auditdomain.Event{
		OrgID: orgID, ActorID: actor.UserID, Action: audit.ActionOrgDeleted,
		TargetType: auditdomain.TargetOrganization, TargetID: orgID, Timestamp: now,
		Metadata: map[string]string{"reason": reason, "purge_at": out.PurgeAt.Format(time.RFC3339)},
	})
	return out, nil
}

// Purge hard-deletes every soft-deleted organization whose purge time has passed and returns the count.
func (s *Service) Purge(ctx context.Context) (n int64, err error) {
	ctx, end := apptrace.StartSpan(ctx, "organization.Purge")
	defer func() { end(err) }()

	n, err = s.store.Repos().Orgs.PurgeDeleted(ctx, s.now())
	if err != nil {
		return 0, apperr.Classify(err, "purge organizations")
	}
	return n, nil
}
