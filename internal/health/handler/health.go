// Package handler reports readiness over HTTP (/healthz) and the standard gRPC health service.
package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"records-dashboard/backend/internal/platform/httpx"
)

// Pinger checks store connectivity (store.Store satisfies it).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks that the invitation policy compiles and evaluates.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

const checkTimeout = 2 * time.Second

// Checker runs the readiness checks. Either dependency may be nil, in which case its check is skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker.
func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy}
}

// Report is the /healthz body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Check runs every configured check and reports whether all passed.
func (c *Checker) Check(ctx context.Context) (Report, bool) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	rep := Report{Status: "serving", Checks: map[string]string{}}
	ok := true
	if c.pinger != nil {
		if err := c.pinger.Ping(ctx); err != nil {
			rep.Checks["database"] = err.Error()
			ok = false
		} else {
			rep.Checks["database"] = "ok"
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			rep.Checks["policy"] = err.Error()
			ok = false
		} else {
			rep.Checks["policy"] = "ok"
		}
	}
	if !ok {
		rep.Status = "not_serving"
	}
	return rep, ok
}

// ServeHTTP answers 200 when ready and 503 otherwise.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep, ok := c.Check(r.Context())
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, code, rep)
}

// Sync sets the overall serving status on hs from one round of checks.
func (c *Checker) Sync(ctx context.Context, hs *health.Server) bool {
	_, ok := c.Check(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", st)
	return ok
}

// Watch calls Sync every interval until ctx is done, logging transitions.
func (c *Checker) Watch(ctx context.Context, hs *health.Server, interval time.Duration, log *zap.Logger) {
	last := c.Sync(ctx, hs)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ok := c.Sync(ctx, hs)
			if ok != last {
				log.Info("readiness changed", zap.Bool("serving", ok))
				last = ok
			}
		}
	}
}
