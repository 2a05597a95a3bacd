package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	membershiphandler "records-dashboard/backend/internal/membership/handler"
	"records-dashboard/backend/internal/organization/domain"
	"records-dashboard/backend/internal/organization/service"
	"records-dashboard/backend/internal/platform/httpx"
	"records-dashboard/backend/internal/server/middleware"
)

// Handler serves organization creation, lookup, and soft deletion.
type Handler struct {
	svc *service.Service
}

// NewHandler returns an organization HTTP handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Organization is the JSON shape of an organization.
type Organization struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	PurgeAt   *time.Time `json:"purgeAt,omitempty"`
}

func toOrganization(o *domain.Org) Organization {
	return Organization{ID: o.ID, Name: o.Name, Slug: o.Slug, CreatedAt: o.CreatedAt, DeletedAt: o.DeletedAt, PurgeAt: o.PurgeAt}
}

type createRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type deleteRequest struct {
	Reason string `json:"reason"`
}

// Create handles POST /v1/orgs. The caller becomes the owner.
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
	created, err := h.svc.Create(r.Context(), req.Name, req.Slug, actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"organization": toOrganization(created.Org),
		"owner":        membershiphandler.ToMember(created.Owner),
	})
}

// Get handles GET /v1/orgs/{orgID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	org, err := h.svc.Get(r.Context(), chi.URLParam(r, "orgID"), actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"organization": toOrganization(org)})
}

// Delete handles DELETE /v1/orgs/{orgID}. The body, with an optional reason, may be omitted.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	var req deleteRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, err)
			return
		}
	}
	org, err := h.svc.SoftDelete(r.Context(), chi.URLParam(r, "orgID"), actor, req.Reason)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"organization": toOrganization(org)})
}
