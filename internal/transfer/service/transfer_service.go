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
	"records-dashboard/backend/internal/platform/apperr"
	"records-dashboard/backend/internal/platform/lifecycle"
	"records-dashboard/backend/internal/platform/rbac"
	"records-dashboard/backend/internal/security"
	"records-dashboard/backend/internal/store"
	apptrace "records-dashboard/backend/internal/telemetry/otel"
	"records-dashboard/backend/internal/transfer/domain"
)

// DefaultTTL is the transfer validity window used when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// View is a transfer together with its display status at the time it was read.
type View struct {
	domain.Transfer
	DisplayStatus lifecycle.DisplayStatus
}

// Initiated is a new transfer and its plaintext token. The token is not recoverable later.
type Initiated struct {
	View
	Token string
}

// Accepted reports the two memberships after a completed handoff.
type Accepted struct {
	View
	NewOwner      *membershipdomain.Membership
	PreviousOwner *membershipdomain.Membership
}

// Service implements the ownership transfer workflow.
type Service struct {
	store    store.Store
	audit    audit.Sink
	ttl      time.Duration
	now      func() time.Time
	newToken func() (token, hash string, err error)
}

// NewService returns a transfer Service. sink may be nil; ttl <= 0 selects DefaultTTL.
func NewService(st store.Store, sink audit.Sink, ttl time.Duration) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:    st,
		audit:    sink,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		newToken: security.NewTransferToken,
	}
}

func (s *Service) view(t *domain.Transfer, now time.Time) View {
	return View{Transfer: *t, DisplayStatus: t.DisplayStatus(now)}
}

// Initiate proposes handing the owner role from the acting owner to toUserID, who must already be a member.
// The organization row is locked so two initiations cannot both pass the single-pending check.
func (s *Service) Initiate(ctx context.Context, orgID string, from membershipdomain.Actor, toUserID, reason string) (out *Initiated, err error) {
	ctx, end := apptrace.StartSpan(ctx, "transfer.Initiate", attribute.String("org_id", orgID))
	defer func() { end(err) }()

	toUserID = strings.TrimSpace(toUserID)
	if toUserID == "" {
		return nil, apperr.InvalidArgument("recipient user id is required")
	}
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
		acting, err := rbac.RequireOrgMember(ctx, r.Members, orgID, from.UserID)
		if err != nil {
			return err
		}
		if acting.Role != membershipdomain.RoleOwner {
			return apperr.Forbidden("only the organization owner can transfer ownership")
		}
		if toUserID == from.UserID {
			return apperr.New(apperr.KindSelfActionDenied, "you cannot transfer ownership to yourself")
		}
		recipient, err := r.Members.GetMembershipByUserAndOrg(ctx, toUserID, orgID)
		if err != nil {
			return err
		}
		if recipient == nil {
			return apperr.NotFound("recipient is not a member of this organization")
		}
		pending, err := r.Transfers.ListPendingByOrg(ctx, orgID)
		if err != nil {
			return err
		}
		for _, p := range pending {
			if p.Active(now) {
				return apperr.Conflict("an ownership transfer is already pending for this organization")
			}
		}
		token, hash, err := s.newToken()
		if err != nil {
			return apperr.Unavailable(err, "failed to generate transfer token")
		}
		t := &domain.Transfer{
			ID:         uuid.New().String(),
			OrgID:      orgID,
			FromUserID: from.UserID,
			ToUserID:   toUserID,
			TokenHash:  hash,
			Status:     lifecycle.StatusPending,
			Reason:     reason,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.ttl),
		}
		if err := r.Transfers.CreateTransfer(ctx, t); err != nil {
			return err
		}
		out = &Initiated{View: s.view(t, now), Token: token}
		return nil
	})
	if err != nil {
		return nil, apperr.Classify(err, "initiate ownership transfer")
	}
	s.audit.Record(ctx, auditdomain.Event{
		OrgID: orgID, ActorID: from.UserID, Action: audit.ActionTransferInitiated,
		TargetType: auditdomain.TargetTransfer, TargetID: out.ID, Timestamp: now,
		Metadata: map[string]string{"to_user_id": toUserID},
	})
	return out, nil
}

// Accept completes the transfer identified by token. In one transaction the recipient becomes owner,
// the initiator becomes admin, and the transfer is marked accepted.
func (s *Service) Accept(ctx context.Context, token string, user membershipdomain.Actor) (out *Accepted, err error) {
	ctx, end := apptrace.StartSpan(ctx, "transfer.Accept")
	defer func() { end(err) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.InvalidArgument("transfer token is required")
	}
	if user.UserID == "" {
		return nil, apperr.Forbidden("authentication required")
	}
	now := s.now()
	err = s.store.WithinTx(ctx, func(r store.Repos) error {
		t, err := r.Transfers.GetTransferByTokenHash(ctx, security.HashTransferToken(token))
		if err != nil {
			return err
		}
		if t == nil || !security.TransferTokenHashEqual(token, t.TokenHash) {
			return apperr.NotFound("ownership transfer not found")
		}
		switch ds := t.DisplayStatus(now); ds {
		case lifecycle.DisplayExpired:
			return apperr.Expired("ownership transfer expired at %s", t.ExpiresAt.Format(time.RFC3339))
		case lifecycle.DisplayPending:
		default:
			return apperr.InvalidState("ownership transfer is already %s", ds)
		}
		if user.UserID != t.ToUserID {
			return apperr.New(apperr.KindActorMismatch, "this ownership transfer is addressed to another user")
		}
		// Lock the owner rows before re-reading the two memberships.
		if _, err := r.Members.CountOwnersByOrg(ctx, t.OrgID); err != nil {
			return err
		}
		fromM, err := r.Members.GetMembershipByUserAndOrg(ctx, t.FromUserID, t.OrgID)
		if err != nil {
			return err
		}
		if fromM == nil || fromM.Role != membershipdomain.RoleOwner {
			return apperr.InvalidState("the initiating member is no longer an owner")
		}
		toM, err := r.Members.GetMembershipByUserAndOrg(ctx, t.ToUserID, t.OrgID)
		if err != nil {
			return err
		}
		if toM == nil {
			return apperr.InvalidState("you are no longer a member of this organization")
		}
		newOwner, err := r.Members.UpdateRole(ctx, t.OrgID, toM.ID, membershipdomain.RoleOwner)
		if err != nil {
			return err
		}
		previousOwner, err := r.Members.UpdateRole(ctx, t.OrgID, fromM.ID, membershipdomain.RoleAdmin)
		if err != nil {
			return err
		}
		if newOwner == nil || previousOwner == nil {
			return apperr.InvalidState("membership changed during transfer")
		}
		ok, err := r.Transfers.MarkAccepted(ctx, t.OrgID, t.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("ownership transfer is no longer pending")
		}
		t.Status = lifecycle.StatusAccepted
		at := now
		t.AcceptedAt = &at
		out = &Accepted{View: s.view(t, now), NewOwner: newOwner, PreviousOwner: previousOwner}
		return nil
	})
	if err != nil {
		return nil, apperr.Classify(err, "accept ownership transfer")
	}
	s.audit.Record(ctx, auditdomain.Event{
		OrgID: out.OrgID, ActorID: user.UserID, Action: audit.ActionTransferAccepted,
		TargetType: auditdomain.TargetTransfer, TargetID: out.ID, Timestamp: now,
		Metadata: map[string]string{"from_user_id": out.FromUserID, "to_user_id": out.ToUserID},
	})
	return out, nil
}

// Cancel withdraws the transfer. Only the initiator may cancel; cancelling a transfer that is
// already accepted or cancelled returns it unchanged.
func (s *Service) Cancel(ctx context.Context, orgID, transferID string, actor membershipdomain.Actor) (out *View, err error) {
	ctx, end := apptrace.StartSpan(ctx, "transfer.Cancel", attribute.String("org_id", orgID), attribute.String("transfer_id", transferID))
	defer func() { end(err) }()

	repos := s.store.Repos()
	t, err := repos.Transfers.GetTransferByID(ctx, orgID, transferID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to load ownership transfer")
	}
	if t == nil {
		return nil, apperr.NotFound("ownership transfer %q not found in this organization", transferID)
	}
	if t.FromUserID != actor.UserID {
		return nil, apperr.Forbidden("only the initiating owner can cancel this transfer")
	}
	now := s.now()
	if t.Status.Terminal() {
		v := s.view(t, now)
		return &v, nil
	}
	updated, err := repos.Transfers.MarkCancelled(ctx, orgID, transferID, now)
	if err != nil {
		return nil, apperr.Classify(err, "cancel ownership transfer")
	}
	if updated == nil {
		current, err := repos.Transfers.GetTransferByID(ctx, orgID, transferID)
		if err != nil {
			return nil, apperr.Unavailable(err, "failed to load ownership transfer")
		}
		if current == nil {
			return nil, apperr.NotFound("ownership transfer %q not found in this organization", transferID)
		}
		v := s.view(current, now)
		return &v, nil
	}
	s.audit.Record(ctx, auditdomain.Event{
		OrgID: orgID, ActorID: actor.UserID, Action: audit.ActionTransferCancelled,
		TargetType: auditdomain.TargetTransfer, TargetID: transferID, Timestamp: now,
	})
	v := s.view(updated, now)
	return &v, nil
}

// Pending returns the org's active transfer, or nil when there is none. The actor must be a member.
func (s *Service) Pending(ctx context.Context, orgID string, actor membershipdomain.Actor) (*View, error) {
	repos := s.store.Repos()
	if _, err := rbac.RequireOrgMember(ctx, repos.Members, orgID, actor.UserID); err != nil {
		return nil, err
	}
	list, err := repos.Transfers.ListPendingByOrg(ctx, orgID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to load ownership transfers")
	}
	now := s.now()
	for _, t := range list {
		if t.Active(now) {
			v := s.view(t, now)
			return &v, nil
		}
	}
	return nil, nil
}
