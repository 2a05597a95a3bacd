package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"records-dashboard/backend/internal/security"
)

type fakeValidator struct {
	ids map[string]*security.Identity
}

func (f fakeValidator) ValidateAccess(token string) (*security.Identity, error) {
	if id, ok := f.ids[token]; ok {
		return id, nil
	}
	return nil, errors.New("invalid token")
}

var validator = fakeValidator{ids: map[string]*security.Identity{
	"tok-a": {UserID: "A", OrgID: "org1", Email: "a@example.com", DisplayName: "Alice"},
}}

func echoActor(w http.ResponseWriter, r *http.Request) {
	a, ok := ActorFrom(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(a.UserID + "|" + a.Email))
}

func TestAuthenticate(t *testing.T) {
	h := Authenticate(validator)(http.HandlerFunc(echoActor))
	tests := []struct {
		name   string
		header string
		want   int
		body   string
	}{
		{"valid", "Bearer tok-a", http.StatusOK, "A|a@example.com"},
		{"case-insensitive scheme", "bearer   tok-a", http.StatusOK, "A|a@example.com"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic tok-a", http.StatusUnauthorized, ""},
		{"invalid token", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestRequireOrgBinding(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Authenticate(validator))
	r.With(RequireOrgBinding("orgID")).Get("/v1/orgs/{orgID}", echoActor)

	for path, want := range map[string]int{
		"/v1/orgs/org1": http.StatusOK,
		"/v1/orgs/org2": http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer tok-a")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "192.168.1.1"}, "10.0.0.9:1234", "192.168.1.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "192.168.1.1, 10.0.0.1"}, "", "192.168.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "192.168.1.2"}, "", "192.168.1.2"},
		{"forwarded wins", map[string]string{"X-Forwarded-For": "192.168.1.1", "X-Real-IP": "192.168.1.2"}, "", "192.168.1.1"},
		{"remote addr", nil, "192.168.1.3:12345", "192.168.1.3"},
		{"whitespace", map[string]string{"X-Forwarded-For": "  192.168.1.1  "}, "", "192.168.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRealClientIP_StoresInContext(t *testing.T) {
	var got string
	h := RealClientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIPFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "172.16.0.4")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "172.16.0.4" {
		t.Errorf("ClientIPFrom = %q", got)
	}
	if ip := ClientIPFrom(req.Context()); ip != "unknown" {
		t.Errorf("ClientIPFrom(empty) = %q, want unknown", ip)
	}
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Use(RequestLogger(zap.NewNop()))
	r.Get("/v1/orgs/{orgID}", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/orgs/"+id, nil))
	}
	got := testutil.ToFloat64(m.requests.With(prometheus.Labels{"method": "GET", "route": "/v1/orgs/{orgID}", "status": "204"}))
	if got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Error("registering twice on one registry should fail")
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodOptions, "/v1/orgs/org1/members", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch) {
		t.Errorf("Allow-Methods = %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}
