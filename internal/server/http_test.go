package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"records-dashboard/backend/internal/bulk"
	healthhandler "records-dashboard/backend/internal/health/handler"
	invitationservice "records-dashboard/backend/internal/invitation/service"
	membershipdomain "records-dashboard/backend/internal/membership/domain"
	membershipservice "records-dashboard/backend/internal/membership/service"
	orgdomain "records-dashboard/backend/internal/organization/domain"
	organizationservice "records-dashboard/backend/internal/organization/service"
	"records-dashboard/backend/internal/security"
	"records-dashboard/backend/internal/server/middleware"
	"records-dashboard/backend/internal/store/memory"
	transferservice "records-dashboard/backend/internal/transfer/service"
)

type fixture struct {
	handler http.Handler
	tokens  *security.TokenProvider
	store   *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatal(err)
	}
	st := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()
	if err := st.Repos().Orgs.CreateOrganization(ctx, &orgdomain.Org{ID: "org1", Name: "Org 1", Slug: "org1", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	for _, m := range []*membershipdomain.Membership{
		{ID: "mA", OrgID: "org1", UserID: "A", Email: "a@example.com", Role: membershipdomain.RoleOwner, CreatedAt: now},
		{ID: "mC", OrgID: "org1", UserID: "C", Email: "c@example.com", Role: membershipdomain.RoleMember, CreatedAt: now},
	} {
		if err := st.Repos().Members.CreateMembership(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	reg := prometheus.NewRegistry()
	metrics, err := middleware.NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	members := membershipservice.NewService(st, nil)
	invitations := invitationservice.NewService(st, nil, nil, 0)
	h := NewRouter(Deps{
		Tokens:        tokens,
		Store:         st,
		Organizations: organizationservice.NewService(st, nil, 0),
		Members:       members,
		Invitations:   invitations,
		Transfers:     transferservice.NewService(st, nil, 0),
		Bulk:          bulk.New(members, invitations, nil, nil, 0),
		Health:        healthhandler.NewChecker(st, nil),
		Metrics:       metrics,
		Gatherer:      reg,
	})
	return &fixture{handler: h, tokens: tokens, store: st}
}

func (f *fixture) token(t *testing.T, id security.Identity) string {
	t.Helper()
	tok, _, err := f.tokens.IssueAccess(id)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_AuthAndBinding(t *testing.T) {
	f := newFixture(t)
	bound := f.token(t, security.Identity{UserID: "A", OrgID: "org1", Email: "a@example.com"})
	other := f.token(t, security.Identity{UserID: "A", OrgID: "org2", Email: "a@example.com"})

	tests := []struct {
		name, method, path, token string
		status                    int
	}{
		{"no token", http.MethodGet, "/v1/orgs/org1/members", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/v1/orgs/org1/members", "nope", http.StatusUnauthorized},
		{"wrong org binding", http.MethodGet, "/v1/orgs/org1/members", other, http.StatusForbidden},
		{"bound", http.MethodGet, "/v1/orgs/org1/members", bound, http.StatusOK},
		{"bound org read", http.MethodGet, "/v1/orgs/org1", bound, http.StatusOK},
		{"audit events", http.MethodGet, "/v1/orgs/org1/audit-events", bound, http.StatusOK},
		{"pending transfer", http.MethodGet, "/v1/orgs/org1/ownership-transfers/pending", bound, http.StatusOK},
		{"invitable roles", http.MethodGet, "/v1/orgs/org1/invitations/roles", bound, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := f.do(tt.method, tt.path, tt.token, ""); rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestRouter_InvitationAcceptNeedsNoBinding(t *testing.T) {
	f := newFixture(t)
	owner := f.token(t, security.Identity{UserID: "A", OrgID: "org1", Email: "a@example.com"})
	rec := f.do(http.MethodPost, "/v1/orgs/org1/invitations", owner, `{"email":"dana@example.com","role":"admin"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create invitation status = %d: %s", rec.Code, rec.Body)
	}
	var created struct {
		Invitation struct {
			ID string `json:"id"`
		} `json:"invitation"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&created)

	invitee := f.token(t, security.Identity{UserID: "D", Email: "dana@example.com"})
	rec = f.do(http.MethodPost, "/v1/orgs/org1/invitations/"+created.Invitation.ID+"/accept", invitee, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d: %s", rec.Code, rec.Body)
	}
	m, _ := f.store.Repos().Members.GetMembershipByUserAndOrg(context.Background(), "D", "org1")
	if m == nil || m.Role != membershipdomain.RoleAdmin {
		t.Errorf("membership = %+v", m)
	}
}

func TestRouter_TransferAcceptAndBulk(t *testing.T) {
	f := newFixture(t)
	owner := f.token(t, security.Identity{UserID: "A", OrgID: "org1"})
	rec := f.do(http.MethodPost, "/v1/orgs/org1/ownership-transfers", owner, `{"toUserId":"C"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("initiate status = %d: %s", rec.Code, rec.Body)
	}
	var init struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&init)

	recipient := f.token(t, security.Identity{UserID: "C"})
	if rec := f.do(http.MethodPost, "/v1/ownership-transfers/accept", recipient, `{"token":"`+init.Token+`"}`); rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d: %s", rec.Code, rec.Body)
	}

	// A is now an admin; C (owner) removes A in bulk alongside an unknown id.
	newOwner := f.token(t, security.Identity{UserID: "C", OrgID: "org1"})
	rec = f.do(http.MethodPost, "/v1/orgs/org1/members:bulkRemove", newOwner, `{"memberIds":["mA","ghost"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk status = %d: %s", rec.Code, rec.Body)
	}
	var res bulk.Result
	_ = json.NewDecoder(rec.Body).Decode(&res)
	if res.Success || len(res.Succeeded) != 1 || res.Succeeded[0] != "mA" || len(res.Failed) != 1 {
		t.Errorf("bulk result = %+v", res)
	}
}

func TestRouter_CreateOrganizationIsUnbound(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, security.Identity{UserID: "N", Email: "n@example.com"})
	rec := f.do(http.MethodPost, "/v1/orgs", tok, `{"name":"New Org","slug":"new-org"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	f.store.InjectFault("ping", context.DeadlineExceeded)
	if rec := f.do(http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("healthz with failing store = %d, want 503", rec.Code)
	}
	f.do(http.MethodGet, "/v1/orgs/org1/members", "", "")
	rec := f.do(http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "records_dashboard_api_http_requests_total") {
		t.Errorf("metrics: %d\n%s", rec.Code, rec.Body)
	}
}
