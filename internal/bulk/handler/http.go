package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"records-dashboard/backend/internal/bulk"
	"records-dashboard/backend/internal/platform/httpx"
	"records-dashboard/backend/internal/server/middleware"
)

// OperationIDHeader lets a client choose the operation id before the batch starts.
const OperationIDHeader = "X-Operation-Id"

// Handler serves the bulk routes. Batches always answer 200 with per-id outcomes;
// only a malformed request is an error.
type Handler struct {
	coord *bulk.Coordinator
}

// NewHandler returns a bulk HTTP handler.
func NewHandler(coord *bulk.Coordinator) *Handler {
	return &Handler{coord: coord}
}

type removeRequest struct {
	MemberIDs []string `json:"memberIds"`
}

type cancelRequest struct {
	InvitationIDs []string `json:"invitationIds"`
}

type combinedRequest struct {
	MemberIDs     []string `json:"memberIds"`
	InvitationIDs []string `json:"invitationIds"`
}

type combinedResponse struct {
	*bulk.Combined
	Success bool `json:"success"`
}

// RemoveMembers handles POST /v1/orgs/{orgID}/members:bulkRemove.
func (h *Handler) RemoveMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	var req removeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	ctx := bulk.WithOperationID(r.Context(), r.Header.Get(OperationIDHeader))
	res, err := h.coord.RemoveMembers(ctx, chi.URLParam(r, "orgID"), req.MemberIDs, actor, nil)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// CancelInvitations handles POST /v1/orgs/{orgID}/invitations:bulkCancel.
func (h *Handler) CancelInvitations(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	ctx := bulk.WithOperationID(r.Context(), r.Header.Get(OperationIDHeader))
	res, err := h.coord.CancelInvitations(ctx, chi.URLParam(r, "orgID"), req.InvitationIDs, actor, nil)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// Run handles POST /v1/orgs/{orgID}/bulk, the combined action.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	var req combinedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	ctx := bulk.WithOperationID(r.Context(), r.Header.Get(OperationIDHeader))
	res, err := h.coord.Run(ctx, chi.URLParam(r, "orgID"), actor, bulk.Request{
		MemberIDs:     req.MemberIDs,
		InvitationIDs: req.InvitationIDs,
	}, nil)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, combinedResponse{Combined: res, Success: res.Success()})
}
