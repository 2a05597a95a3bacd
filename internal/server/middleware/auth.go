// Package middleware holds the HTTP middleware chain: authentication, org binding, client IP,
// request logging, metrics, and CORS.
package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"records-dashboard/backend/internal/platform/apperr"
	"records-dashboard/backend/internal/platform/httpx"
	"records-dashboard/backend/internal/security"
)

const bearerPrefix = "bearer "

// AccessValidator validates an access token and returns the caller it identifies.
type AccessValidator interface {
	ValidateAccess(token string) (*security.Identity, error)
}

// Authenticate validates the Bearer access token and stores the caller in the request context.
// Requests without a valid token get 401.
func Authenticate(tokens AccessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				httpx.Unauthenticated(w)
				return
			}
			id, err := tokens.ValidateAccess(token)
			if err != nil || id == nil || id.UserID == "" {
				httpx.Unauthenticated(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireOrgBinding rejects requests whose token is bound to a different organization than
// the {orgID} route parameter. It must run after Authenticate.
func RequireOrgBinding(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				httpx.Unauthenticated(w)
				return
			}
			orgID := chi.URLParam(r, param)
			if orgID == "" || id.OrgID != orgID {
				httpx.WriteError(w, apperr.Forbidden("session is not bound to this organization"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
