package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"records-dashboard/backend/internal/invitation/service"
	membershipdomain "records-dashboard/backend/internal/membership/domain"
	membershiphandler "records-dashboard/backend/internal/membership/handler"
	"records-dashboard/backend/internal/platform/apperr"
	"records-dashboard/backend/internal/platform/httpx"
	"records-dashboard/backend/internal/server/middleware"
)

// Handler serves the invitation routes under /v1/orgs/{orgID}/invitations.
type Handler struct {
	svc *service.Service
}

// NewHandler returns an invitation HTTP handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Invitation is the JSON shape of an invitation. Status is the display status.
type Invitation struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"orgId"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	InviterID   string     `json:"inviterId"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	ResendCount int        `json:"resendCount"`
}

// Warning is the JSON shape of a create warning.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toInvitation(v *service.View) Invitation {
	return Invitation{
		ID:          v.ID,
		OrgID:       v.OrgID,
		Email:       v.Email,
		Role:        string(v.Role),
		Status:      string(v.DisplayStatus),
		InviterID:   v.InviterID,
		ExpiresAt:   v.ExpiresAt,
		CreatedAt:   v.CreatedAt,
		AcceptedAt:  v.AcceptedAt,
		CancelledAt: v.CancelledAt,
		ResendCount: v.ResendCount,
	}
}

type createRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// List handles GET /v1/orgs/{orgID}/invitations.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	list, err := h.svc.List(r.Context(), chi.URLParam(r, "orgID"), actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	out := make([]Invitation, 0, len(list))
	for _, v := range list {
		out = append(out, toInvitation(v))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"invitations": out})
}

// Roles handles GET /v1/orgs/{orgID}/invitations/roles: the roles the caller may invite with.
func (h *Handler) Roles(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	roles, err := h.svc.Roles(r.Context(), chi.URLParam(r, "orgID"), actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"roles": out})
}

// Create handles POST /v1/orgs/{orgID}/invitations.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	role, err := membershipdomain.ParseRole(req.Role)
	if err != nil {
		httpx.WriteError(w, apperr.InvalidArgument("unknown role %q", req.Role))
		return
	}
	res, err := h.svc.Create(r.Context(), chi.URLParam(r, "orgID"), req.Email, role, actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	warnings := make([]Warning, 0, len(res.Warnings))
	for _, wn := range res.Warnings {
		warnings = append(warnings, Warning{Code: wn.Code, Message: wn.Message})
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"invitation": toInvitation(&res.View),
		"warnings":   warnings,
	})
}

// Resend handles POST /v1/orgs/{orgID}/invitations/{invitationID}/resend.
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Resend)
}

// Cancel handles POST /v1/orgs/{orgID}/invitations/{invitationID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel)
}

type transitionFunc func(ctx context.Context, orgID, id string, actor membershipdomain.Actor) (*service.View, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	v, err := fn(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "invitationID"), actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"invitation": toInvitation(v)})
}

// Accept handles POST /v1/orgs/{orgID}/invitations/{invitationID}/accept. The caller's email must
// match the invitation; the session need not be bound to the organization yet.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	m, err := h.svc.Accept(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "invitationID"), actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"member": membershiphandler.ToMember(m)})
}
