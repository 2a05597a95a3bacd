package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"records-dashboard/backend/internal/membership/domain"
	"records-dashboard/backend/internal/membership/service"
	"records-dashboard/backend/internal/platform/apperr"
	"records-dashboard/backend/internal/platform/httpx"
	"records-dashboard/backend/internal/server/middleware"
)

// Handler serves the member management routes under /v1/orgs/{orgID}/members.
type Handler struct {
	svc *service.Service
}

// NewHandler returns a membership HTTP handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Member is the JSON shape of a membership.
type Member struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"orgId"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ToMember converts a membership for responses.
func ToMember(m *domain.Membership) Member {
	return Member{
		ID:          m.ID,
		OrgID:       m.OrgID,
		UserID:      m.UserID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		Role:        string(m.Role),
		Status:      string(m.EffectiveStatus()),
		CreatedAt:   m.CreatedAt,
	}
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

type removalResponse struct {
	MemberID  string    `json:"memberId"`
	OrgID     string    `json:"orgId"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	RemovedAt time.Time `json:"removedAt"`
}

// List handles GET /v1/orgs/{orgID}/members.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	list, err := h.svc.ListMembers(r.Context(), chi.URLParam(r, "orgID"), actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	out := make([]Member, 0, len(list))
	for _, m := range list {
		out = append(out, ToMember(m))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"members": out})
}

// ChangeRole handles PATCH /v1/orgs/{orgID}/members/{memberID}.
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	var req changeRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		httpx.WriteError(w, apperr.InvalidArgument("unknown role %q", req.Role))
		return
	}
	m, err := h.svc.ChangeRole(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "memberID"), role, actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"member": ToMember(m)})
}

// Remove handles DELETE /v1/orgs/{orgID}/members/{memberID}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	removal, err := h.svc.RemoveMember(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "memberID"), actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, removalResponse{
		MemberID:  removal.MemberID,
		OrgID:     removal.OrgID,
		UserID:    removal.UserID,
		Role:      string(removal.Role),
		RemovedAt: removal.RemovedAt,
	})
}
