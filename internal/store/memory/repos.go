package memory

import (
	"context"
	"sort"
	"time"

	auditdomain "records-dashboard/backend/internal/audit/domain"
	invitationdomain "records-dashboard/backend/internal/invitation/domain"
	membershipdomain "records-dashboard/backend/internal/membership/domain"
	orgdomain "records-dashboard/backend/internal/organization/domain"
	"records-dashboard/backend/internal/platform/apperr"
	"records-dashboard/backend/internal/platform/lifecycle"
	transferdomain "records-dashboard/backend/internal/transfer/domain"
)

type orgRepo struct{ h *handle }

func (r *orgRepo) GetOrganizationByID(_ context.Context, id string) (*orgdomain.Org, error) {
	var out *orgdomain.Org
	err := r.h.do("orgs.get", id, func(st *state) error {
		if st.orgActive(id) {
			o := *st.orgs[id]
			out = &o
		}
		return nil
	})
	return out, err
}

func (r *orgRepo) LockOrganization(ctx context.Context, id string) (*orgdomain.Org, error) {
	if err := r.h.store.fault("orgs.lock", id); err != nil {
		return nil, err
	}
	return r.GetOrganizationByID(ctx, id)
}

func (r *orgRepo) CreateOrganization(_ context.Context, o *orgdomain.Org) error {
	return r.h.do("orgs.create", o.ID, func(st *state) error {
		if _, ok := st.orgs[o.ID]; ok {
			return apperr.Conflict("organization %q already exists", o.ID)
		}
		for _, existing := range st.orgs {
			if existing.Slug == o.Slug {
				return apperr.Conflict("organization slug %q is already taken", o.Slug)
			}
		}
		c := *o
		st.orgs[o.ID] = &c
		return nil
	})
}

func (r *orgRepo) SoftDeleteOrganization(_ context.Context, o *orgdomain.Org) (bool, error) {
	var changed bool
	err := r.h.do("orgs.soft_delete", o.ID, func(st *state) error {
		cur, ok := st.orgs[o.ID]
		if !ok || cur.Deleted() {
			return nil
		}
		cur.DeletedAt = o.DeletedAt
		cur.DeletedBy = o.DeletedBy
		cur.DeletionReason = o.DeletionReason
		cur.PurgeAt = o.PurgeAt
		changed = true
		return nil
	})
	return changed, err
}

func (r *orgRepo) PurgeDeleted(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.h.do("orgs.purge", "", func(st *state) error {
		for id, o := range st.orgs {
			if !o.Deleted() || o.PurgeAt == nil || o.PurgeAt.After(now) {
				continue
			}
			delete(st.orgs, id)
			for k, m := range st.members {
				if m.OrgID == id {
					delete(st.members, k)
				}
			}
			for k, i := range st.invitations {
				if i.OrgID == id {
					delete(st.invitations, k)
				}
			}
			for k, t := range st.transfers {
				if t.OrgID == id {
					delete(st.transfers, k)
				}
			}
			n++
		}
		return nil
	})
	return n, err
}

type memberRepo struct{ h *handle }

func (r *memberRepo) GetMembershipByID(_ context.Context, orgID, id string) (*membershipdomain.Membership, error) {
	var out *membershipdomain.Membership
	err := r.h.do("members.get", id, func(st *state) error {
		if m, ok := st.members[id]; ok && m.OrgID == orgID && st.orgActive(orgID) {
			c := *m
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *memberRepo) GetMembershipByUserAndOrg(_ context.Context, userID, orgID string) (*membershipdomain.Membership, error) {
	var out *membershipdomain.Membership
	err := r.h.do("members.get_by_user", userID, func(st *state) error {
		if !st.orgActive(orgID) {
			return nil
		}
		for _, m := range st.members {
			if m.OrgID == orgID && m.UserID == userID {
				c := *m
				out = &c
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *memberRepo) ListMembershipsByOrg(_ context.Context, orgID string) ([]*membershipdomain.Membership, error) {
	out := make([]*membershipdomain.Membership, 0)
	err := r.h.do("members.list", orgID, func(st *state) error {
		if !st.orgActive(orgID) {
			return nil
		}
		for _, m := range st.members {
			if m.OrgID == orgID {
				c := *m
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *memberRepo) CreateMembership(_ context.Context, m *membershipdomain.Membership) error {
	return r.h.do("members.create", m.ID, func(st *state) error {
		if _, ok := st.orgs[m.OrgID]; !ok {
			return apperr.NotFound("organization not found")
		}
		if _, ok := st.members[m.ID]; ok {
			return apperr.Conflict("membership %q already exists", m.ID)
		}
		for _, existing := range st.members {
			if existing.OrgID == m.OrgID && existing.UserID == m.UserID {
				return apperr.Conflict("user is already a member of this organization")
			}
		}
		c := *m
		st.members[m.ID] = &c
		return nil
	})
}

func (r *memberRepo) UpdateRole(_ context.Context, orgID, id string, role membershipdomain.Role) (*membershipdomain.Membership, error) {
	var out *membershipdomain.Membership
	err := r.h.do("members.update_role", id, func(st *state) error {
		m, ok := st.members[id]
		if !ok || m.OrgID != orgID || !st.orgActive(orgID) {
			return nil
		}
		m.Role = role
		c := *m
		out = &c
		return nil
	})
	return out, err
}

func (r *memberRepo) DeleteMembership(_ context.Context, orgID, id string) (bool, error) {
	var deleted bool
	err := r.h.do("members.delete", id, func(st *state) error {
		m, ok := st.members[id]
		if !ok || m.OrgID != orgID || !st.orgActive(orgID) {
			return nil
		}
		delete(st.members, id)
		deleted = true
		return nil
	})
	return deleted, err
}

func (r *memberRepo) CountOwnersByOrg(_ context.Context, orgID string) (int, error) {
	var n int
	err := r.h.do("members.count_owners", orgID, func(st *state) error {
		if !st.orgActive(orgID) {
			return nil
		}
		for _, m := range st.members {
			if m.OrgID == orgID && m.Role == membershipdomain.RoleOwner {
				n++
			}
		}
		return nil
	})
	return n, err
}

type invitationRepo struct{ h *handle }

func (r *invitationRepo) GetInvitationByID(_ context.Context, orgID, id string) (*invitationdomain.Invitation, error) {
	var out *invitationdomain.Invitation
	err := r.h.do("invitations.get", id, func(st *state) error {
		if inv, ok := st.invitations[id]; ok && inv.OrgID == orgID && st.orgActive(orgID) {
			c := *inv
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *invitationRepo) ListInvitationsByOrg(_ context.Context, orgID string) ([]*invitationdomain.Invitation, error) {
	return r.list("invitations.list", orgID, func(inv *invitationdomain.Invitation) bool { return true })
}

func (r *invitationRepo) ListOutstandingByEmail(_ context.Context, orgID, email string, now time.Time) ([]*invitationdomain.Invitation, error) {
	return r.list("invitations.list_outstanding", orgID, func(inv *invitationdomain.Invitation) bool {
		return inv.Email == email && inv.Status == lifecycle.StatusPending && !inv.ExpiresAt.Before(now)
	})
}

func (r *invitationRepo) list(op, orgID string, keep func(*invitationdomain.Invitation) bool) ([]*invitationdomain.Invitation, error) {
	out := make([]*invitationdomain.Invitation, 0)
	err := r.h.do(op, orgID, func(st *state) error {
		if !st.orgActive(orgID) {
			return nil
		}
		for _, inv := range st.invitations {
			if inv.OrgID == orgID && keep(inv) {
				c := *inv
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *invitationRepo) CreateInvitation(_ context.Context, inv *invitationdomain.Invitation) error {
	return r.h.do("invitations.create", inv.ID, func(st *state) error {
		if _, ok := st.orgs[inv.OrgID]; !ok {
			return apperr.NotFound("organization not found")
		}
		if _, ok := st.invitations[inv.ID]; ok {
			return apperr.Conflict("invitation %q already exists", inv.ID)
		}
		c := *inv
		st.invitations[inv.ID] = &c
		return nil
	})
}

func (r *invitationRepo) UpdateExpiry(_ context.Context, orgID, id string, expiresAt, at time.Time) (*invitationdomain.Invitation, error) {
	return r.update("invitations.update_expiry", orgID, id, func(inv *invitationdomain.Invitation) bool {
		if inv.Status != lifecycle.StatusPending {
			return false
		}
		inv.ExpiresAt = expiresAt
		inv.UpdatedAt = at
		inv.ResendCount++
		return true
	})
}

func (r *invitationRepo) MarkCancelled(_ context.Context, orgID, id string, at time.Time) (*invitationdomain.Invitation, error) {
	return r.update("invitations.cancel", orgID, id, func(inv *invitationdomain.Invitation) bool {
		if inv.Status != lifecycle.StatusPending {
			return false
		}
		inv.Status = lifecycle.StatusCancelled
		t := at
		inv.CancelledAt = &t
		inv.UpdatedAt = at
		return true
	})
}

func (r *invitationRepo) MarkAccepted(_ context.Context, orgID, id, userID string, at time.Time) (bool, error) {
	out, err := r.update("invitations.accept", orgID, id, func(inv *invitationdomain.Invitation) bool {
		if inv.Status != lifecycle.StatusPending || inv.ExpiresAt.Before(at) {
			return false
		}
		inv.Status = lifecycle.StatusAccepted
		t := at
		inv.AcceptedAt = &t
		inv.AcceptedBy = userID
		inv.UpdatedAt = at
		return true
	})
	return out != nil, err
}

// update applies fn to the stored invitation and returns a copy when fn reports a change.
func (r *invitationRepo) update(op, orgID, id string, fn func(*invitationdomain.Invitation) bool) (*invitationdomain.Invitation, error) {
	var out *invitationdomain.Invitation
	err := r.h.do(op, id, func(st *state) error {
		inv, ok := st.invitations[id]
		if !ok || inv.OrgID != orgID || !st.orgActive(orgID) {
			return nil
		}
		c := *inv
		if !fn(&c) {
			return nil
		}
		st.invitations[id] = &c
		res := c
		out = &res
		return nil
	})
	return out, err
}

type transferRepo struct{ h *handle }

func (r *transferRepo) GetTransferByID(_ context.Context, orgID, id string) (*transferdomain.Transfer, error) {
	var out *transferdomain.Transfer
	err := r.h.do("transfers.get", id, func(st *state) error {
		if t, ok := st.transfers[id]; ok && t.OrgID == orgID && st.orgActive(orgID) {
			c := *t
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *transferRepo) GetTransferByTokenHash(_ context.Context, tokenHash string) (*transferdomain.Transfer, error) {
	var out *transferdomain.Transfer
	err := r.h.do("transfers.get_by_token", "", func(st *state) error {
		for _, t := range st.transfers {
			if t.TokenHash == tokenHash && st.orgActive(t.OrgID) {
				c := *t
				out = &c
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *transferRepo) ListPendingByOrg(_ context.Context, orgID string) ([]*transferdomain.Transfer, error) {
	out := make([]*transferdomain.Transfer, 0)
	err := r.h.do("transfers.list_pending", orgID, func(st *state) error {
		if !st.orgActive(orgID) {
			return nil
		}
		for _, t := range st.transfers {
			if t.OrgID == orgID && t.Status == lifecycle.StatusPending {
				c := *t
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func (r *transferRepo) CreateTransfer(_ context.Context, t *transferdomain.Transfer) error {
	return r.h.do("transfers.create", t.ID, func(st *state) error {
		if _, ok := st.orgs[t.OrgID]; !ok {
			return apperr.NotFound("organization not found")
		}
		for _, existing := range st.transfers {
			if existing.ID == t.ID || existing.TokenHash == t.TokenHash {
				return apperr.Conflict("transfer token collision")
			}
		}
		c := *t
		st.transfers[t.ID] = &c
		return nil
	})
}

func (r *transferRepo) MarkAccepted(_ context.Context, orgID, id string, at time.Time) (bool, error) {
	var changed bool
	err := r.h.do("transfers.accept", id, func(st *state) error {
		t, ok := st.transfers[id]
		if !ok || t.OrgID != orgID || t.Status != lifecycle.StatusPending || t.ExpiresAt.Before(at) {
			return nil
		}
		c := *t
		c.Status = lifecycle.StatusAccepted
		ts := at
		c.AcceptedAt = &ts
		st.transfers[id] = &c
		changed = true
		return nil
	})
	return changed, err
}

func (r *transferRepo) MarkCancelled(_ context.Context, orgID, id string, at time.Time) (*transferdomain.Transfer, error) {
	var out *transferdomain.Transfer
	err := r.h.do("transfers.cancel", id, func(st *state) error {
		t, ok := st.transfers[id]
		if !ok || t.OrgID != orgID || t.Status != lifecycle.StatusPending || !st.orgActive(orgID) {
			return nil
		}
		c := *t
		c.Status = lifecycle.StatusCancelled
		ts := at
		c.CancelledAt = &ts
		st.transfers[id] = &c
		res := c
		out = &res
		return nil
	})
	return out, err
}

type auditRepo struct{ h *handle }

func (r *auditRepo) GetByID(_ context.Context, id string) (*auditdomain.Event, error) {
	var out *auditdomain.Event
	err := r.h.do("audit.get", id, func(st *state) error {
		for _, e := range st.events {
			if e.ID == id {
				c := *e
				out = &c
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *auditRepo) ListByOrg(_ context.Context, orgID string, limit, offset int32) ([]*auditdomain.Event, error) {
	out := make([]*auditdomain.Event, 0)
	err := r.h.do("audit.list", orgID, func(st *state) error {
		for i := len(st.events) - 1; i >= 0; i-- {
			if st.events[i].OrgID == orgID {
				c := *st.events[i]
				out = append(out, &c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if int(offset) >= len(out) {
		return []*auditdomain.Event{}, nil
	}
	out = out[offset:]
	if limit > 0 && int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *auditRepo) Create(_ context.Context, e *auditdomain.Event) error {
	return r.h.do("audit.create", e.ID, func(st *state) error {
		c := *e
		st.events = append(st.events, &c)
		return nil
	})
}
