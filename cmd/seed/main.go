// seed creates a development organization with an owner, an admin, and a member, then prints an
// access token for each so the API can be exercised with curl. It runs against DATABASE_URL.
// Re-running is safe: an existing dev organization is left untouched.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"records-dashboard/backend/internal/config"
	"records-dashboard/backend/internal/db"
	invitationservice "records-dashboard/backend/internal/invitation/service"
	membershipdomain "records-dashboard/backend/internal/membership/domain"
	organizationservice "records-dashboard/backend/internal/organization/service"
	"records-dashboard/backend/internal/platform/apperr"
	"records-dashboard/backend/internal/platform/logging"
	"records-dashboard/backend/internal/security"
	"records-dashboard/backend/internal/store"
)

const devOrgSlug = "dev-org"

var (
	devOwner  = membershipdomain.Actor{UserID: "dev-user-001", DisplayName: "Dev Owner", Email: "owner@example.com"}
	devAdmin  = membershipdomain.Actor{UserID: "dev-user-002", DisplayName: "Dev Admin", Email: "admin@example.com"}
	devMember = membershipdomain.Actor{UserID: "dev-user-003", DisplayName: "Dev Member", Email: "member@example.com"}
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(os.Stderr, cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	if cfg.Env == "production" {
		log.Fatal("refusing to seed with APP_ENV=production")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()
	st := store.NewPostgres(pool)

	orgs := organizationservice.NewService(st, nil, cfg.PurgeAfter())
	created, err := orgs.Create(ctx, "Dev Organization", devOrgSlug, devOwner)
	switch {
	case apperr.KindOf(err) == apperr.KindConflict:
		log.Info("dev organization already exists; skipping inserts", zap.String("slug", devOrgSlug))
		return
	case err != nil:
		log.Fatal("create dev organization", zap.Error(err))
	}
	orgID := created.Org.ID

	invitations := invitationservice.NewService(st, nil, nil, cfg.InvitationValidity())
	for _, join := range []struct {
		actor membershipdomain.Actor
		role  membershipdomain.Role
	}{
		{devAdmin, membershipdomain.RoleAdmin},
		{devMember, membershipdomain.RoleMember},
	} {
		inv, err := invitations.Create(ctx, orgID, join.actor.Email, join.role, devOwner)
		if err != nil {
			log.Fatal("invite", zap.String("email", join.actor.Email), zap.Error(err))
		}
		if _, err := invitations.Accept(ctx, orgID, inv.ID, join.actor); err != nil {
			log.Fatal("accept invitation", zap.String("email", join.actor.Email), zap.Error(err))
		}
	}
	log.Info("seeded dev organization", zap.String("org_id", orgID))

	tokens, err := devTokenProvider(cfg)
	if err != nil {
		log.Fatal("token provider", zap.Error(err))
	}
	for _, a := range []membershipdomain.Actor{devOwner, devAdmin, devMember} {
		tok, exp, err := tokens.IssueAccess(security.Identity{UserID: a.UserID, OrgID: orgID, Email: a.Email, DisplayName: a.DisplayName})
		if err != nil {
			log.Fatal("issue token", zap.Error(err))
		}
		fmt.Printf("%s (%s)\n  expires %s\n  %s\n", a.DisplayName, a.Email, exp.Format(time.RFC3339), tok)
	}
}

// devTokenProvider uses the configured key pair, or the built-in development pair when none is set.
func devTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "" {
		return security.NewTestTokenProvider()
	}
	return security.NewTokenProviderFromPEM(cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
}
