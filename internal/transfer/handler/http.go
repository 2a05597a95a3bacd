package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	membershiphandler "records-dashboard/backend/internal/membership/handler"
	"records-dashboard/backend/internal/platform/httpx"
	"records-dashboard/backend/internal/server/middleware"
	"records-dashboard/backend/internal/transfer/service"
)

// Handler serves the ownership transfer routes.
type Handler struct {
	svc *service.Service
}

// NewHandler returns a transfer HTTP handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Transfer is the JSON shape of an ownership transfer. The token hash is never exposed.
type Transfer struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"orgId"`
	FromUserID  string     `json:"fromUserId"`
	ToUserID    string     `json:"toUserId"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

func toTransfer(v *service.View) *Transfer {
	if v == nil {
		return nil
	}
	return &Transfer{
		ID:          v.ID,
		OrgID:       v.OrgID,
		FromUserID:  v.FromUserID,
		ToUserID:    v.ToUserID,
		Status:      string(v.DisplayStatus),
		Reason:      v.Reason,
		CreatedAt:   v.CreatedAt,
		ExpiresAt:   v.ExpiresAt,
		AcceptedAt:  v.AcceptedAt,
		CancelledAt: v.CancelledAt,
	}
}

type initiateRequest struct {
	ToUserID string `json:"toUserId"`
	Reason   string `json:"reason"`
}

type acceptRequest struct {
	Token string `json:"token"`
}

// Initiate handles POST /v1/orgs/{orgID}/ownership-transfers. The plaintext token is returned once.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	var req initiateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	out, err := h.svc.Initiate(r.Context(), chi.URLParam(r, "orgID"), actor, req.ToUserID, req.Reason)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"transfer": toTransfer(&out.View),
		"token":    out.Token,
	})
}

// Pending handles GET /v1/orgs/{orgID}/ownership-transfers/pending. transfer is null when none is live.
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	v, err := h.svc.Pending(r.Context(), chi.URLParam(r, "orgID"), actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"transfer": toTransfer(v)})
}

// Cancel handles POST /v1/orgs/{orgID}/ownership-transfers/{transferID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	v, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "transferID"), actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"transfer": toTransfer(v)})
}

// Accept handles POST /v1/ownership-transfers/accept. The token identifies the organization.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	var req acceptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	out, err := h.svc.Accept(r.Context(), req.Token, actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"transfer":      toTransfer(&out.View),
		"newOwner":      membershiphandler.ToMember(out.NewOwner),
		"previousOwner": membershiphandler.ToMember(out.PreviousOwner),
	})
}
