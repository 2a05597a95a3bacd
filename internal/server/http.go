// Package server assembles the HTTP router and the gRPC health server.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	audithandler "records-dashboard/backend/internal/audit/handler"
	"records-dashboard/backend/internal/bulk"
	bulkhandler "records-dashboard/backend/internal/bulk/handler"
	healthhandler "records-dashboard/backend/internal/health/handler"
	invitationhandler "records-dashboard/backend/internal/invitation/handler"
	invitationservice "records-dashboard/backend/internal/invitation/service"
	membershiphandler "records-dashboard/backend/internal/membership/handler"
	membershipservice "records-dashboard/backend/internal/membership/service"
	organizationhandler "records-dashboard/backend/internal/organization/handler"
	organizationservice "records-dashboard/backend/internal/organization/service"
	"records-dashboard/backend/internal/server/middleware"
	"records-dashboard/backend/internal/store"
	transferhandler "records-dashboard/backend/internal/transfer/handler"
	transferservice "records-dashboard/backend/internal/transfer/service"
)

// Deps holds everything the router needs. Health and Gatherer may be nil, which drops /healthz
// and /metrics respectively; Metrics may be nil to skip request instrumentation.
type Deps struct {
	Tokens        middleware.AccessValidator
	Store         store.Store
	Organizations *organizationservice.Service
	Members       *membershipservice.Service
	Invitations   *invitationservice.Service
	Transfers     *transferservice.Service
	Bulk          *bulk.Coordinator
	Health        *healthhandler.Checker
	Metrics       *middleware.Metrics
	Gatherer      prometheus.Gatherer
	CORSOrigins   []string
	Log           *zap.Logger
}

// NewRouter returns the API router.
//
// Every /v1 route needs a Bearer access token. Org-scoped management routes also require the
// token's organization to match {orgID}. Accepting an invitation or a transfer and creating an
// organization only need an authenticated caller.
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RealClientIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(d.CORSOrigins))
	if d.Metrics != nil {
		r.Use(d.Metrics.Handler)
	}

	if d.Health != nil {
		r.Method(http.MethodGet, "/healthz", d.Health)
	}
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	orgs := organizationhandler.NewHandler(d.Organizations)
	members := membershiphandler.NewHandler(d.Members)
	invitations := invitationhandler.NewHandler(d.Invitations)
	transfers := transferhandler.NewHandler(d.Transfers)
	batches := bulkhandler.NewHandler(d.Bulk)
	audit := audithandler.NewHandler(d.Store)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(d.Tokens))

		r.Post("/orgs", orgs.Create)
		r.Post("/orgs/{orgID}/invitations/{invitationID}/accept", invitations.Accept)
		r.Post("/ownership-transfers/accept", transfers.Accept)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOrgBinding("orgID"))

			r.Get("/orgs/{orgID}", orgs.Get)
			r.Delete("/orgs/{orgID}", orgs.Delete)

			r.Get("/orgs/{orgID}/members", members.List)
			r.Patch("/orgs/{orgID}/members/{memberID}", members.ChangeRole)
			r.Delete("/orgs/{orgID}/members/{memberID}", members.Remove)
			r.Post("/orgs/{orgID}/members:bulkRemove", batches.RemoveMembers)

			r.Get("/orgs/{orgID}/invitations", invitations.List)
			r.Post("/orgs/{orgID}/invitations", invitations.Create)
			r.Get("/orgs/{orgID}/invitations/roles", invitations.Roles)
			r.Post("/orgs/{orgID}/invitations/{invitationID}/resend", invitations.Resend)
			r.Post("/orgs/{orgID}/invitations/{invitationID}/cancel", invitations.Cancel)
			r.Post("/orgs/{orgID}/invitations:bulkCancel", batches.CancelInvitations)

			r.Post("/orgs/{orgID}/ownership-transfers", transfers.Initiate)
			r.Get("/orgs/{orgID}/ownership-transfers/pending", transfers.Pending)
			r.Post("/orgs/{orgID}/ownership-transfers/{transferID}/cancel", transfers.Cancel)

			r.Post("/orgs/{orgID}/bulk", batches.Run)
			r.Get("/orgs/{orgID}/audit-events", audit.List)
		})
	})
	return r
}
