package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"records-dashboard/backend/internal/audit/domain"
	membershipdomain "records-dashboard/backend/internal/membership/domain"
	"records-dashboard/backend/internal/platform/apperr"
	"records-dashboard/backend/internal/platform/httpx"
	"records-dashboard/backend/internal/platform/rbac"
	"records-dashboard/backend/internal/server/middleware"
	"records-dashboard/backend/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Handler serves GET /v1/orgs/{orgID}/audit-events for admins and owners.
type Handler struct {
	store store.Store
}

// NewHandler returns an audit HTTP handler reading from st.
func NewHandler(st store.Store) *Handler {
	return &Handler{store: st}
}

// List returns the org's audit events, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	limit, err := intParam(r, "limit", defaultLimit)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if limit < 1 || limit > maxLimit {
		httpx.WriteError(w, apperr.InvalidArgument("limit must be between 1 and %d", maxLimit))
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if offset < 0 {
		httpx.WriteError(w, apperr.InvalidArgument("offset must not be negative"))
		return
	}
	orgID := chi.URLParam(r, "orgID")
	repos := h.store.Repos()
	if _, err := rbac.RequireOrgRole(r.Context(), repos.Members, orgID, actor.UserID, membershipdomain.RoleAdmin); err != nil {
		httpx.WriteError(w, err)
		return
	}
	events, err := repos.Audit.ListByOrg(r.Context(), orgID, int32(limit), int32(offset))
	if err != nil {
		httpx.WriteError(w, apperr.Unavailable(err, "failed to load audit events"))
		return
	}
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		out = append(out, *e)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"events": out, "limit": limit, "offset": offset})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.InvalidArgument("%s must be an integer", name)
	}
	return n, nil
}
