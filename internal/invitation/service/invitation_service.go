package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"records-dashboard/backend/internal/audit"
	auditdomain "records-dashboard/backend/internal/audit/domain"
	"records-dashboard/backend/internal/invitation/domain"
	membershipdomain "records-dashboard/backend/internal/membership/domain"
	"records-dashboard/backend/internal/platform/apperr"
	"records-dashboard/backend/internal/platform/lifecycle"
	"records-dashboard/backend/internal/platform/rbac"
	policyengine "records-dashboard/backend/internal/policy/engine"
	"records-dashboard/backend/internal/store"
	apptrace "records-dashboard/backend/internal/telemetry/otel"
)

// DefaultTTL is the invitation validity window used when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// Warning codes returned by Create. Warnings never block an invitation.
const (
	WarningDuplicateOutstanding = "duplicate_outstanding"
	WarningAlreadyMember        = "already_member"
)

// Warning is a non-fatal observation about a new invitation.
type Warning struct {
	Code    string
	Message string
}

// View is an invitation together with its display status at the time it was read.
type View struct {
	domain.Invitation
	DisplayStatus lifecycle.DisplayStatus
}

// CreateResult is the new invitation plus any warnings.
type CreateResult struct {
	View
	Warnings []Warning
}

// Service implements the invitation lifecycle: create, resend, cancel, accept.
type Service struct {
	store  store.Store
	policy policyengine.Evaluator
	audit  audit.Sink
	ttl    time.Duration
	now    func() time.Time
}

// NewService returns an invitation Service. policy and sink may be nil. Without a policy only the
// invitation roles (rbac.InvitationRoles) can be offered; a policy decides over every assignable role
// and may widen that set. ttl <= 0 selects DefaultTTL.
func NewService(st store.Store, policy policyengine.Evaluator, sink audit.Sink, ttl time.Duration) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: st, policy: policy, audit: sink, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) view(inv *domain.Invitation, now time.Time) *View {
	return &View{Invitation: *inv, DisplayStatus: inv.DisplayStatus(now)}
}

// Create invites email to orgID with role. The inviter must be able to assign role and the
// invitation policy must not deny it. Outstanding invitations to the same address are reported
// as warnings, since re-inviting is a supported recovery path.
func (s *Service) Create(ctx context.Context, orgID, email string, role membershipdomain.Role, inviter membershipdomain.Actor) (res *CreateResult, err error) {
	ctx, end := apptrace.StartSpan(ctx, "invitation.Create", attribute.String("org_id", orgID), attribute.String("role", string(role)))
	defer func() { end(err) }()

	email, err = domain.NormalizeEmail(email)
	if err != nil {
		return nil, apperr.InvalidArgument("%s", err.Error())
	}
	if !role.Valid() {
		return nil, apperr.InvalidArgument("unknown role %q", role)
	}
	repos := s.store.Repos()
	acting, err := rbac.RequireOrgMember(ctx, repos.Members, orgID, inviter.UserID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanAssign(acting.Role, role) {
		return nil, apperr.Forbidden("role %s cannot invite with role %s", acting.Role, role)
	}
	if err := s.checkPolicy(ctx, orgID, acting.Role, role, email); err != nil {
		return nil, err
	}

	now := s.now()
	warnings, err := s.warnings(ctx, repos, orgID, email, now)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to check existing invitations")
	}
	inv := &domain.Invitation{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		Email:     email,
		Role:      role,
		Status:    lifecycle.StatusPending,
		InviterID: inviter.UserID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repos.Invitations.CreateInvitation(ctx, inv); err != nil {
		return nil, apperr.Classify(err, "create invitation")
	}
	s.audit.Record(ctx, auditdomain.Event{
		OrgID: orgID, ActorID: inviter.UserID, Action: audit.ActionInvitationCreated,
		TargetType: auditdomain.TargetInvitation, TargetID: inv.ID, Timestamp: now,
		Metadata: map[string]string{"email": email, "role": string(role)},
	})
	return &CreateResult{View: *s.view(inv, now), Warnings: warnings}, nil
}

func (s *Service) checkPolicy(ctx context.Context, orgID string, inviterRole, role membershipdomain.Role, email string) error {
	if s.policy == nil {
		if !rbac.IsInvitationRole(role) {
			return apperr.Forbidden("the %s role cannot be offered by invitation", role)
		}
		return nil
	}
	d, err := s.policy.EvaluateInvitation(ctx, policyengine.InvitationInput{
		OrgID:       orgID,
		InviterRole: string(inviterRole),
		Role:        string(role),
		Email:       email,
		EmailDomain: domain.EmailDomain(email),
	})
	if err != nil {
		return apperr.Unavailable(err, "invitation policy evaluation failed")
	}
	if !d.Allowed {
		reason := "invitation denied by policy"
		if len(d.Reasons) > 0 {
			reason = strings.Join(d.Reasons, "; ")
		}
		return apperr.Forbidden("%s", reason)
	}
	return nil
}

func (s *Service) warnings(ctx context.Context, repos store.Repos, orgID, email string, now time.Time) ([]Warning, error) {
	var out []Warning
	outstanding, err := repos.Invitations.ListOutstandingByEmail(ctx, orgID, email, now)
	if err != nil {
		return nil, err
	}
	if len(outstanding) > 0 {
		out = append(out, Warning{Code: WarningDuplicateOutstanding, Message: "an invitation to this address is already outstanding"})
	}
	members, err := repos.Members.ListMembershipsByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if strings.EqualFold(m.Email, email) {
			out = append(out, Warning{Code: WarningAlreadyMember, Message: "this address already belongs to a member"})
			break
		}
	}
	return out, nil
}

// Roles returns the roles actor may offer by invitation: assignable by the actor and allowed by policy,
// or the actor's rbac.InvitableRoles when no policy is configured.
func (s *Service) Roles(ctx context.Context, orgID string, actor membershipdomain.Actor) ([]membershipdomain.Role, error) {
	acting, err := rbac.RequireOrgMember(ctx, s.store.Repos().Members, orgID, actor.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]membershipdomain.Role, 0)
	if s.policy == nil {
		return append(out, rbac.InvitableRoles(acting.Role)...), nil
	}
	for _, r := range rbac.AssignableRoles(acting.Role) {
		err := s.checkPolicy(ctx, orgID, acting.Role, r, actor.Email)
		if err == nil {
			out = append(out, r)
			continue
		}
		if apperr.KindOf(err) != apperr.KindForbidden {
			return nil, err
		}
	}
	return out, nil
}

// List returns every invitation of the org with its display status. The actor must be a member.
func (s *Service) List(ctx context.Context, orgID string, actor membershipdomain.Actor) (out []*View, err error) {
	ctx, end := apptrace.StartSpan(ctx, "invitation.List", attribute.String("org_id", orgID))
	defer func() { end(err) }()

	repos := s.store.Repos()
	if _, err := rbac.RequireOrgMember(ctx, repos.Members, orgID, actor.UserID); err != nil {
		return nil, err
	}
	list, err := repos.Invitations.ListInvitationsByOrg(ctx, orgID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to list invitations")
	}
	now := s.now()
	out = make([]*View, len(list))
	for i, inv := range list {
		out[i] = s.view(inv, now)
	}
	return out, nil
}

// authorizeExisting resolves the actor and the invitation and checks the actor may assign its role.
func (s *Service) authorizeExisting(ctx context.Context, repos store.Repos, orgID, id string, actor membershipdomain.Actor) (*domain.Invitation, error) {
	acting, err := rbac.RequireOrgMember(ctx, repos.Members, orgID, actor.UserID)
	if err != nil {
		return nil, err
	}
	inv, err := repos.Invitations.GetInvitationByID(ctx, orgID, id)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to load invitation")
	}
	if inv == nil {
		return nil, apperr.NotFound("invitation %q not found in this organization", id)
	}
	if !rbac.CanAssign(acting.Role, inv.Role) {
		return nil, apperr.Forbidden("role %s cannot manage invitations for role %s", acting.Role, inv.Role)
	}
	return inv, nil
}

// Resend extends a pending or expired invitation to now + TTL. It stays pending.
func (s *Service) Resend(ctx context.Context, orgID, id string, actor membershipdomain.Actor) (v *View, err error) {
	ctx, end := apptrace.StartSpan(ctx, "invitation.Resend", attribute.String("org_id", orgID), attribute.String("invitation_id", id))
	defer func() { end(err) }()

	repos := s.store.Repos()
	inv, err := s.authorizeExisting(ctx, repos, orgID, id, actor)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch ds := inv.DisplayStatus(now); ds {
	case lifecycle.DisplayPending, lifecycle.DisplayExpired:
	default:
		return nil, apperr.InvalidState("invitation is %s and cannot be resent", ds)
	}
	updated, err := repos.Invitations.UpdateExpiry(ctx, orgID, id, now.Add(s.ttl), now)
	if err != nil {
		return nil, apperr.Classify(err, "resend invitation")
	}
	if updated == nil {
		return nil, apperr.InvalidState("invitation is no longer pending")
	}
	s.audit.Record(ctx, auditdomain.Event{
		OrgID: orgID, ActorID: actor.UserID, Action: audit.ActionInvitationResent,
		TargetType: auditdomain.TargetInvitation, TargetID: id, Timestamp: now,
		Metadata: map[string]string{"expires_at": updated.ExpiresAt.Format(time.RFC3339)},
	})
	return s.view(updated, now), nil
}

// Cancel moves a pending or expired invitation to cancelled. Cancelling a cancelled invitation
// is a no-op success; an accepted invitation cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, orgID, id string, actor membershipdomain.Actor) (v *View, err error) {
	ctx, end := apptrace.StartSpan(ctx, "invitation.Cancel", attribute.String("org_id", orgID), attribute.String("invitation_id", id))
	defer func() { end(err) }()

	repos := s.store.Repos()
	inv, err := s.authorizeExisting(ctx, repos, orgID, id, actor)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch inv.Status {
	case lifecycle.StatusCancelled:
		return s.view(inv, now), nil
	case lifecycle.StatusAccepted:
		return nil, apperr.InvalidState("invitation was already accepted")
	}
	updated, err := repos.Invitations.MarkCancelled(ctx, orgID, id, now)
	if err != nil {
		return nil, apperr.Classify(err, "cancel invitation")
	}
	if updated == nil {
		// Lost a race with another transition; report what it became.
		current, err := repos.Invitations.GetInvitationByID(ctx, orgID, id)
		if err != nil {
			return nil, apperr.Unavailable(err, "failed to load invitation")
		}
		if current != nil && current.Status == lifecycle.StatusCancelled {
			return s.view(current, now), nil
		}
		return nil, apperr.InvalidState("invitation was already accepted")
	}
	s.audit.Record(ctx, auditdomain.Event{
		OrgID: orgID, ActorID: actor.UserID, Action: audit.ActionInvitationCancelled,
		TargetType: auditdomain.TargetInvitation, TargetID: id, Timestamp: now,
	})
	return s.view(updated, now), nil
}

// Accept turns the invitation into a membership for user. The status update is conditional on
// the invitation still being pending, and the member insert commits with it or not at all.
func (s *Service) Accept(ctx context.Context, orgID, id string, user membershipdomain.Actor) (m *membershipdomain.Membership, err error) {
	ctx, end := apptrace.StartSpan(ctx, "invitation.Accept", attribute.String("org_id", orgID), attribute.String("invitation_id", id))
	defer func() { end(err) }()

	if user.UserID == "" {
		return nil, apperr.Forbidden("authentication required")
	}
	now := s.now()
	err = s.store.WithinTx(ctx, func(r store.Repos) error {
		inv, err := r.Invitations.GetInvitationByID(ctx, orgID, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return apperr.NotFound("invitation %q not found in this organization", id)
		}
		switch ds := inv.DisplayStatus(now); ds {
		case lifecycle.DisplayExpired:
			return apperr.Expired("invitation expired at %s", inv.ExpiresAt.Format(time.RFC3339))
		case lifecycle.DisplayPending:
		default:
			return apperr.InvalidState("invitation is already %s", ds)
		}
		if !strings.EqualFold(strings.TrimSpace(user.Email), inv.Email) {
			return apperr.New(apperr.KindActorMismatch, "this invitation was sent to a different email address")
		}
		existing, err := r.Members.GetMembershipByUserAndOrg(ctx, user.UserID, orgID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("you are already a member of this organization")
		}
		ok, err := r.Invitations.MarkAccepted(ctx, orgID, id, user.UserID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("invitation is no longer pending")
		}
		m = &membershipdomain.Membership{
			ID:          uuid.New().String(),
			OrgID:       orgID,
			UserID:      user.UserID,
			Email:       inv.Email,
			DisplayName: user.DisplayName,
			Role:        inv.Role,
			Status:      membershipdomain.StatusActive,
			CreatedAt:   now,
		}
		return r.Members.CreateMembership(ctx, m)
	})
	if err != nil {
		return nil, apperr.Classify(err, "accept invitation")
	}
	s.audit.Record(ctx, auditdomain.Event{
		OrgID: orgID, ActorID: user.UserID, Action: audit.ActionInvitationAccepted,
		TargetType: auditdomain.TargetInvitation, TargetID: id, Timestamp: now,
	})
	s.audit.Record(ctx, auditdomain.Event{
		OrgID: orgID, ActorID: user.UserID, Action: audit.ActionMemberJoined,
		TargetType: auditdomain.TargetMember, TargetID: m.ID, Timestamp: now,
		Metadata: map[string]string{"role": string(m.Role), "invitation_id": id},
	})
	return m, nil
}
