// purge hard-deletes organizations whose soft-delete retention window has passed. Run it from cron.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"records-dashboard/backend/internal/config"
	"records-dashboard/backend/internal/db"
	organizationservice "records-dashboard/backend/internal/organization/service"
	"records-dashboard/backend/internal/platform/logging"
	"records-dashboard/backend/internal/store"
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	svc := organizationservice.NewService(store.NewPostgres(pool), nil, cfg.PurgeAfter())
	n, err := svc.Purge(ctx)
	if err != nil {
		log.Fatal("purge organizations", zap.Error(err))
	}
	log.Info("purged organizations", zap.Int64("count", n))
}
