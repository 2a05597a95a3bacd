package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"records-dashboard/backend/internal/audit"
	auditdomain "records-dashboard/backend/internal/audit/domain"
	"records-dashboard/backend/internal/membership/domain"
	"records-dashboard/backend/internal/platform/apperr"
	"records-dashboard/backend/internal/platform/rbac"
	"records-dashboard/backend/internal/store"
	apptrace "records-dashboard/backend/internal/telemetry/otel"
)

// Removal confirms a hard-deleted membership.
type Removal struct {
	MemberID  string
	OrgID     string
	UserID    string
	Role      domain.Role
	RemovedAt time.Time
}

// Service implements org-scoped member listing, role changes, and removal.
type Service struct {
	store store.Store
	audit audit.Sink
	now   func() time.Time
}

// NewService returns a membership Service. sink may be nil.
func NewService(st store.Store, sink audit.Sink) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{store: st, audit: sink, now: func() time.Time { return time.Now().UTC() }}
}

// ListMembers returns the org's members with their effective status. The actor must be a member.
func (s *Service) ListMembers(ctx context.Context, orgID string, actor domain.Actor) (out []*domain.Membership, err error) {
	ctx, end := apptrace.StartSpan(ctx, "membership.ListMembers", attribute.String("org_id", orgID))
	defer func() { end(err) }()

	repos := s.store.Repos()
	if _, err := rbac.RequireOrgMember(ctx, repos.Members, orgID, actor.UserID); err != nil {
		return nil, err
	}
	list, err := repos.Members.ListMembershipsByOrg(ctx, orgID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to list members")
	}
	for _, m := range list {
		m.Status = m.EffectiveStatus()
	}
	return list, nil
}

// ChangeRole sets the role of memberID. Checks run in this order: unknown role, acting membership,
// missing target, self-action, authority, last owner. Nobody outranks an owner, so demoting one here
// is always Forbidden; owners step down only through an ownership transfer.
// A change to the current role succeeds without a write.
func (s *Service) ChangeRole(ctx context.Context, orgID, memberID string, newRole domain.Role, actor domain.Actor) (result *domain.Membership, err error) {
	ctx, end := apptrace.StartSpan(ctx, "membership.ChangeRole",
		attribute.String("org_id", orgID), attribute.String("member_id", memberID), attribute.String("role", string(newRole)))
	defer func() { end(err) }()

	if !newRole.Valid() {
		return nil, apperr.InvalidArgument("unknown role %q", newRole)
	}
	var previous domain.Role
	err = s.store.WithinTx(ctx, func(r store.Repos) error {
		acting, err := rbac.RequireOrgMember(ctx, r.Members, orgID, actor.UserID)
		if err != nil {
			return err
		}
		target, err := r.Members.GetMembershipByID(ctx, orgID, memberID)
		if err != nil {
			return err
		}
		if target == nil {
			return apperr.NotFound("member %q not found in this organization", memberID)
		}
		if err := rbac.AuthorizeRoleChange(acting, target, newRole); err != nil {
			return err
		}
		if target.Role == domain.RoleOwner && newRole != domain.RoleOwner {
			if err := ensureAnotherOwner(ctx, r, orgID); err != nil {
				return err
			}
		}
		previous = target.Role
		if target.Role == newRole {
			result = target
			return nil
		}
		updated, err := r.Members.UpdateRole(ctx, orgID, memberID, newRole)
		if err != nil {
			return err
		}
		if updated == nil {
			return apperr.NotFound("member %q not found in this organization", memberID)
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, apperr.Classify(err, "change role")
	}
	result.Status = result.EffectiveStatus()
	if previous != newRole {
		s.audit.Record(ctx, auditdomain.Event{
			OrgID: orgID, ActorID: actor.UserID, Action: audit.ActionMemberRoleChanged,
			TargetType: auditdomain.TargetMember, TargetID: memberID, Timestamp: s.now(),
			Metadata: map[string]string{"from_role": string(previous), "to_role": string(newRole), "user_id": result.UserID},
		})
	}
	return result, nil
}

// RemoveMember hard-deletes memberID. The last-owner check runs inside the write transaction
// with the owner rows locked, so two concurrent removals of the last two owners cannot both commit.
func (s *Service) RemoveMember(ctx context.Context, orgID, memberID string, actor domain.Actor) (removal *Removal, err error) {
	ctx, end := apptrace.StartSpan(ctx, "membership.RemoveMember",
		attribute.String("org_id", orgID), attribute.String("member_id", memberID))
	defer func() { end(err) }()

	err = s.store.WithinTx(ctx, func(r store.Repos) error {
		acting, err := rbac.RequireOrgMember(ctx, r.Members, orgID, actor.UserID)
		if err != nil {
			return err
		}
		target, err := r.Members.GetMembershipByID(ctx, orgID, memberID)
		if err != nil {
			return err
		}
		if target == nil {
			return apperr.NotFound("member %q not found in this organization", memberID)
		}
		if target.Role == domain.RoleOwner {
			if err := ensureAnotherOwner(ctx, r, orgID); err != nil {
				return err
			}
		}
		if err := rbac.AuthorizeRemoval(acting, target); err != nil {
			return err
		}
		deleted, err := r.Members.DeleteMembership(ctx, orgID, memberID)
		if err != nil {
			return err
		}
		if !deleted {
			return apperr.NotFound("member %q not found in this organization", memberID)
		}
		removal = &Removal{MemberID: target.ID, OrgID: orgID, UserID: target.UserID, Role: target.Role, RemovedAt: s.now()}
		return nil
	})
	if err != nil {
		return nil, apperr.Classify(err, "remove member")
	}
	s.audit.Record(ctx, auditdomain.Event{
		OrgID: orgID, ActorID: actor.UserID, Action: audit.ActionMemberRemoved,
		TargetType: auditdomain.TargetMember, TargetID: memberID, Timestamp: removal.RemovedAt,
		Metadata: map[string]string{"role": string(removal.Role), "user_id": removal.UserID},
	})
	return removal, nil
}

// ensureAnotherOwner locks the owner rows and fails with LastOwnerDenied when only one owner is left.
func ensureAnotherOwner(ctx context.Context, r store.Repos, orgID string) error {
	n, err := r.Members.CountOwnersByOrg(ctx, orgID)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperr.New(apperr.KindLastOwnerDenied, "the organization must keep at least one owner")
	}
	return nil
}
