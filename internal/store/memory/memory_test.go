package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	invitationdomain "records-dashboard/backend/internal/invitation/domain"
	membershipdomain "records-dashboard/backend/internal/membership/domain"
	orgdomain "records-dashboard/backend/internal/organization/domain"
	"records-dashboard/backend/internal/platform/apperr"
	"records-dashboard/backend/internal/platform/lifecycle"
	"records-dashboard/backend/internal/store"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedOrg(t *testing.T, s *Store, id string) {
	t.Helper()
	ctx := context.Background()
	if err := s.Repos().Orgs.CreateOrganization(ctx, &orgdomain.Org{ID: id, Name: id, Slug: id, CreatedAt: t0}); err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
}

func seedMember(t *testing.T, s *Store, orgID, id, userID string, role membershipdomain.Role) {
	t.Helper()
	m := &membershipdomain.Membership{ID: id, OrgID: orgID, UserID: userID, Role: role, CreatedAt: t0}
	if err := s.Repos().Members.CreateMembership(context.Background(), m); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s := New()
	seedOrg(t, s, "org1")
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(r store.Repos) error {
		if _, err := r.Members.UpdateRole(ctx, "org1", "missing", membershipdomain.RoleAdmin); err != nil {
			return err
		}
		if err := r.Members.CreateMembership(ctx, &membershipdomain.Membership{ID: "m1", OrgID: "org1", UserID: "u1", Role: membershipdomain.RoleOwner}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx err = %v, want boom", err)
	}
	m, err := s.Repos().Members.GetMembershipByID(ctx, "org1", "m1")
	if err != nil {
		t.Fatalf("GetMembershipByID: %v", err)
	}
	if m != nil {
		t.Error("membership created in a rolled-back transaction is visible")
	}
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	s := New()
	seedOrg(t, s, "org1")
	seedMember(t, s, "org1", "m1", "u1", membershipdomain.RoleMember)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(r store.Repos) error {
		_, err := r.Members.UpdateRole(ctx, "org1", "m1", membershipdomain.RoleAdmin)
		return err
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	m, _ := s.Repos().Members.GetMembershipByID(ctx, "org1", "m1")
	if m == nil || m.Role != membershipdomain.RoleAdmin {
		t.Fatalf("role after commit = %+v, want admin", m)
	}
}

func TestCreateMembership_DuplicateUserIsConflict(t *testing.T) {
	s := New()
	seedOrg(t, s, "org1")
	seedMember(t, s, "org1", "m1", "u1", membershipdomain.RoleOwner)
	err := s.Repos().Members.CreateMembership(context.Background(),
		&membershipdomain.Membership{ID: "m2", OrgID: "org1", UserID: "u1", Role: membershipdomain.RoleMember})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("KindOf = %q, want Conflict", apperr.KindOf(err))
	}
}

func TestInjectFault_NarrowedToOneRecord(t *testing.T) {
	s := New()
	seedOrg(t, s, "org1")
	seedMember(t, s, "org1", "m1", "u1", membershipdomain.RoleMember)
	seedMember(t, s, "org1", "m2", "u2", membershipdomain.RoleMember)
	ctx := context.Background()
	down := errors.New("connection reset")
	s.InjectFault("members.delete:m2", down)

	if ok, err := s.Repos().Members.DeleteMembership(ctx, "org1", "m1"); err != nil || !ok {
		t.Errorf("DeleteMembership(m1) = %v, %v; want true, nil", ok, err)
	}
	if _, err := s.Repos().Members.DeleteMembership(ctx, "org1", "m2"); !errors.Is(err, down) {
		t.Errorf("DeleteMembership(m2) err = %v, want injected fault", err)
	}
	s.InjectFault("members.delete:m2", nil)
	if ok, err := s.Repos().Members.DeleteMembership(ctx, "org1", "m2"); err != nil || !ok {
		t.Errorf("after clearing fault DeleteMembership(m2) = %v, %v", ok, err)
	}
}

func TestSoftDeletedOrgHidesChildrenAndPurgeCascades(t *testing.T) {
	s := New()
	seedOrg(t, s, "org1")
	seedMember(t, s, "org1", "m1", "u1", membershipdomain.RoleOwner)
	ctx := context.Background()
	deletedAt := t0.Add(time.Hour)
	purgeAt := deletedAt.Add(24 * time.Hour)

	ok, err := s.Repos().Orgs.SoftDeleteOrganization(ctx, &orgdomain.Org{ID: "org1", DeletedAt: &deletedAt, DeletedBy: "u1", PurgeAt: &purgeAt})
	if err != nil || !ok {
		t.Fatalf("SoftDeleteOrganization = %v, %v", ok, err)
	}
	if o, _ := s.Repos().Orgs.GetOrganizationByID(ctx, "org1"); o != nil {
		t.Error("soft-deleted organization still readable")
	}
	if m, _ := s.Repos().Members.GetMembershipByUserAndOrg(ctx, "u1", "org1"); m != nil {
		t.Error("membership of soft-deleted organization still readable")
	}

	if n, _ := s.Repos().Orgs.PurgeDeleted(ctx, purgeAt.Add(-time.Second)); n != 0 {
		t.Errorf("purged %d organizations before purge time", n)
	}
	if n, _ := s.Repos().Orgs.PurgeDeleted(ctx, purgeAt); n != 1 {
		t.Errorf("purged %d organizations at purge time, want 1", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.st.members) != 0 {
		t.Errorf("members left after purge: %d", len(s.st.members))
	}
}

func TestInvitationMarkAccepted_OnlyOnce(t *testing.T) {
	s := New()
	seedOrg(t, s, "org1")
	ctx := context.Background()
	inv := &invitationdomain.Invitation{
		ID: "i1", OrgID: "org1", Email: "a@example.com", Role: membershipdomain.RoleMember,
		Status: lifecycle.StatusPending, ExpiresAt: t0.Add(7 * 24 * time.Hour), CreatedAt: t0, UpdatedAt: t0,
	}
	if err := s.Repos().Invitations.CreateInvitation(ctx, inv); err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	first, err := s.Repos().Invitations.MarkAccepted(ctx, "org1", "i1", "u1", t0.Add(time.Hour))
	if err != nil || !first {
		t.Fatalf("first MarkAccepted = %v, %v", first, err)
	}
	second, err := s.Repos().Invitations.MarkAccepted(ctx, "org1", "i1", "u2", t0.Add(2*time.Hour))
	if err != nil || second {
		t.Errorf("second MarkAccepted = %v, %v; want false, nil", second, err)
	}
}

func TestInvitationMarkAccepted_RefusesExpired(t *testing.T) {
	s := New()
	seedOrg(t, s, "org1")
	ctx := context.Background()
	expires := t0.Add(time.Hour)
	_ = s.Repos().Invitations.CreateInvitation(ctx, &invitationdomain.Invitation{
		ID: "i1", OrgID: "org1", Email: "a@example.com", Role: membershipdomain.RoleMember,
		Status: lifecycle.StatusPending, ExpiresAt: expires, CreatedAt: t0, UpdatedAt: t0,
	})
	ok, err := s.Repos().Invitations.MarkAccepted(ctx, "org1", "i1", "u1", expires.Add(time.Nanosecond))
	if err != nil || ok {
		t.Errorf("MarkAccepted after expiry = %v, %v; want false, nil", ok, err)
	}
	ok, _ = s.Repos().Invitations.MarkAccepted(ctx, "org1", "i1", "u1", expires)
	if !ok {
		t.Error("MarkAccepted exactly at expiry should succeed")
	}
}
