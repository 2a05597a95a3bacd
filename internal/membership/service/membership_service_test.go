package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	auditdomain "records-dashboard/backend/internal/audit/domain"
	"records-dashboard/backend/internal/membership/domain"
	orgdomain "records-dashboard/backend/internal/organization/domain"
	"records-dashboard/backend/internal/platform/apperr"
	"records-dashboard/backend/internal/store/memory"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []auditdomain.Event
}

func (r *recordingSink) Record(_ context.Context, e auditdomain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

// newOrg1 builds org1 with A:owner, B:admin, C:member.
func newOrg1(t *testing.T) (*Service, *memory.Store, *recordingSink) {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	if err := st.Repos().Orgs.CreateOrganization(ctx, &orgdomain.Org{ID: "org1", Name: "Org 1", Slug: "org1", CreatedAt: t0}); err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	for i, m := range []struct {
		id, user string
		role     domain.Role
	}{
		{"mA", "A", domain.RoleOwner},
		{"mB", "B", domain.RoleAdmin},
		{"mC", "C", domain.RoleMember},
	} {
		err := st.Repos().Members.CreateMembership(ctx, &domain.Membership{
			ID: m.id, OrgID: "org1", UserID: m.user, Email: m.user + "@example.com", Role: m.role,
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("CreateMembership(%s): %v", m.id, err)
		}
	}
	sink := &recordingSink{}
	svc := NewService(st, sink)
	svc.now = func() time.Time { return t0 }
	return svc, st, sink
}

func actor(userID string) domain.Actor { return domain.Actor{UserID: userID} }

func TestOrg1Scenario(t *testing.T) {
	svc, _, _ := newOrg1(t)
	ctx := context.Background()

	got, err := svc.ChangeRole(ctx, "org1", "mC", domain.RoleAdmin, actor("B"))
	if err != nil {
		t.Fatalf("B.changeRole(C, admin): %v", err)
	}
	if got.Role != domain.RoleAdmin {
		t.Errorf("C role = %q, want admin", got.Role)
	}

	// Fresh org so C is still a member when removing B.
	svc, _, _ = newOrg1(t)
	if _, err := svc.ChangeRole(ctx, "org1", "mA", domain.RoleMember, actor("B")); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("B.changeRole(A, member) err = %v, want Forbidden", err)
	}
	if _, err := svc.RemoveMember(ctx, "org1", "mB", actor("C")); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("C.removeMember(B) err = %v, want Forbidden", err)
	}
}

func TestListMembers_DefaultsStatus(t *testing.T) {
	svc, _, _ := newOrg1(t)
	list, err := svc.ListMembers(context.Background(), "org1", actor("C"))
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	for _, m := range list {
		if m.Status != domain.StatusActive {
			t.Errorf("member %s status = %q, want active", m.ID, m.Status)
		}
	}
	if list[0].ID != "mA" {
		t.Errorf("first member = %s, want mA (oldest first)", list[0].ID)
	}
}

func TestListMembers_NonMemberForbidden(t *testing.T) {
	svc, _, _ := newOrg1(t)
	if _, err := svc.ListMembers(context.Background(), "org1", actor("stranger")); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("err = %v, want Forbidden", err)
	}
}

func TestChangeRole_Errors(t *testing.T) {
	tests := []struct {
		name     string
		memberID string
		role     domain.Role
		actor    string
		want     apperr.Kind
	}{
		{"unknown role", "mC", domain.Role("superuser"), "A", apperr.KindInvalidArgument},
		{"missing member", "nope", domain.RoleAdmin, "A", apperr.KindNotFound},
		{"admin demotes owner", "mA", domain.RoleAdmin, "B", apperr.KindForbidden},
		{"admin demotes owner to member", "mA", domain.RoleMember, "B", apperr.KindForbidden},
		{"owner demotes self", "mA", domain.RoleAdmin, "A", apperr.KindSelfActionDenied},
		{"self change", "mB", domain.RoleMember, "B", apperr.KindSelfActionDenied},
		{"peer", "mB", domain.RoleMember, "B2", apperr.KindForbidden},
		{"grant owner", "mC", domain.RoleOwner, "A", apperr.KindForbidden},
		{"member acts", "mB", domain.RoleMember, "C", apperr.KindForbidden},
		{"non-member", "mC", domain.RoleAdmin, "stranger", apperr.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st, sink := newOrg1(t)
			_ = st.Repos().Members.CreateMembership(context.Background(),
				&domain.Membership{ID: "mB2", OrgID: "org1", UserID: "B2", Role: domain.RoleAdmin, CreatedAt: t0})
			_, err := svc.ChangeRole(context.Background(), "org1", tt.memberID, tt.role, actor(tt.actor))
			if got := apperr.KindOf(err); got != tt.want {
				t.Errorf("kind = %q, want %q (err %v)", got, tt.want, err)
			}
			if apperr.ReasonOf(err) == "" {
				t.Error("failure carries no reason")
			}
			if len(sink.actions()) != 0 {
				t.Errorf("failed change emitted audit events: %v", sink.actions())
			}
		})
	}
}

func TestChangeRole_OwnerDemotionIsForbiddenEvenWithCoOwner(t *testing.T) {
	svc, st, sink := newOrg1(t)
	ctx := context.Background()
	if err := st.Repos().Members.CreateMembership(ctx, &domain.Membership{ID: "mA2", OrgID: "org1", UserID: "A2", Role: domain.RoleOwner, CreatedAt: t0}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
	for _, who := range []string{"A2", "B"} {
		if _, err := svc.ChangeRole(ctx, "org1", "mA", domain.RoleAdmin, actor(who)); !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("%s demoting owner A: err = %v, want Forbidden", who, err)
		}
	}
	if m, _ := st.Repos().Members.GetMembershipByID(ctx, "org1", "mA"); m == nil || m.Role != domain.RoleOwner {
		t.Errorf("A = %+v, want still owner", m)
	}
	if len(sink.actions()) != 0 {
		t.Errorf("refused demotions emitted %v", sink.actions())
	}
}

func TestChangeRole_SameRoleIsNoop(t *testing.T) {
	svc, _, sink := newOrg1(t)
	m, err := svc.ChangeRole(context.Background(), "org1", "mC", domain.RoleMember, actor("A"))
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if m.Role != domain.RoleMember {
		t.Errorf("role = %q", m.Role)
	}
	if len(sink.actions()) != 0 {
		t.Errorf("no-op change emitted %v", sink.actions())
	}
}

func TestChangeRole_EmitsAudit(t *testing.T) {
	svc, _, sink := newOrg1(t)
	if _, err := svc.ChangeRole(context.Background(), "org1", "mC", domain.RoleManager, actor("A")); err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("events = %d, want 1", len(sink.events))
	}
	e := sink.events[0]
	if e.Action != "member.role_changed" || e.TargetID != "mC" || e.ActorID != "A" || e.Metadata["to_role"] != "manager" {
		t.Errorf("event = %+v", e)
	}
}

func TestRemoveMember(t *testing.T) {
	svc, st, sink := newOrg1(t)
	ctx := context.Background()
	removal, err := svc.RemoveMember(ctx, "org1", "mC", actor("B"))
	if err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if removal.UserID != "C" || removal.Role != domain.RoleMember {
		t.Errorf("removal = %+v", removal)
	}
	if m, _ := st.Repos().Members.GetMembershipByID(ctx, "org1", "mC"); m != nil {
		t.Error("member still present after removal")
	}
	if got := sink.actions(); len(got) != 1 || got[0] != "member.removed" {
		t.Errorf("audit = %v", got)
	}
}

func TestRemoveMember_OwnerRules(t *testing.T) {
	svc, st, _ := newOrg1(t)
	ctx := context.Background()

	if _, err := svc.RemoveMember(ctx, "org1", "mA", actor("B")); apperr.KindOf(err) != apperr.KindLastOwnerDenied {
		t.Errorf("removing the sole owner: kind = %q, want LastOwnerDenied", apperr.KindOf(err))
	}

	_ = st.Repos().Members.CreateMembership(ctx, &domain.Membership{ID: "mA2", OrgID: "org1", UserID: "A2", Role: domain.RoleOwner, CreatedAt: t0})
	if _, err := svc.RemoveMember(ctx, "org1", "mA2", actor("B")); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("admin removing an owner: err = %v, want Forbidden", err)
	}
	if _, err := svc.RemoveMember(ctx, "org1", "mA", actor("A")); apperr.KindOf(err) != apperr.KindSelfActionDenied {
		t.Errorf("owner removing self: kind = %q, want SelfActionDenied", apperr.KindOf(err))
	}
	if _, err := svc.RemoveMember(ctx, "org1", "mA2", actor("A")); err != nil {
		t.Errorf("owner removing another owner: %v", err)
	}
}

func TestRemoveMember_StoreFailureIsRetryable(t *testing.T) {
	svc, st, sink := newOrg1(t)
	st.InjectFault("members.delete", errors.New("connection reset"))
	_, err := svc.RemoveMember(context.Background(), "org1", "mC", actor("A"))
	var e *apperr.Error
	if !errors.As(err, &e) || !e.Retryable() {
		t.Fatalf("err = %v, want retryable Unavailable", err)
	}
	st.InjectFault("members.delete", nil)
	if m, _ := st.Repos().Members.GetMembershipByID(context.Background(), "org1", "mC"); m == nil {
		t.Error("member removed despite store failure")
	}
	if len(sink.actions()) != 0 {
		t.Errorf("failed removal emitted %v", sink.actions())
	}
}

func TestConcurrentOwnerRemovals_KeepOneOwner(t *testing.T) {
	svc, st, _ := newOrg1(t)
	ctx := context.Background()
	_ = st.Repos().Members.CreateMembership(ctx, &domain.Membership{ID: "mA2", OrgID: "org1", UserID: "A2", Role: domain.RoleOwner, CreatedAt: t0})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = svc.RemoveMember(ctx, "org1", "mA2", actor("A")) }()
	go func() { defer wg.Done(); _, errs[1] = svc.RemoveMember(ctx, "org1", "mA", actor("A2")) }()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want exactly 1 (errs %v)", succeeded, errs)
	}
	if n, _ := st.Repos().Members.CountOwnersByOrg(ctx, "org1"); n != 1 {
		t.Errorf("owners = %d, want 1", n)
	}
}

func TestAtLeastOneOwnerAfterRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	users := []string{"A", "B", "C", "D", "E"}
	for round := 0; round < 20; round++ {
		svc, st, _ := newOrg1(t)
		ctx := context.Background()
		_ = st.Repos().Members.CreateMembership(ctx, &domain.Membership{ID: "mD", OrgID: "org1", UserID: "D", Role: domain.RoleOwner, CreatedAt: t0})
		_ = st.Repos().Members.CreateMembership(ctx, &domain.Membership{ID: "mE", OrgID: "org1", UserID: "E", Role: domain.RoleManager, CreatedAt: t0})
		for step := 0; step < 40; step++ {
			who := users[rng.Intn(len(users))]
			target := "m" + users[rng.Intn(len(users))]
			if rng.Intn(2) == 0 {
				_, _ = svc.RemoveMember(ctx, "org1", target, actor(who))
			} else {
				_, _ = svc.ChangeRole(ctx, "org1", target, domain.Roles[rng.Intn(len(domain.Roles))], actor(who))
			}
			n, err := st.Repos().Members.CountOwnersByOrg(ctx, "org1")
			if err != nil {
				t.Fatalf("CountOwnersByOrg: %v", err)
			}
			if n < 1 {
				t.Fatalf("round %d step %d: owner count = %d", round, step, n)
			}
		}
	}
}
