// migrate applies the embedded SQL migrations. Use -direction down to roll back, -version to inspect.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"records-dashboard/backend/internal/config"
	"records-dashboard/backend/internal/db/migrate"
	"records-dashboard/backend/internal/platform/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	showVersion := flag.Bool("version", false, "Print the applied migration version and exit")
	flag.Parse()

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

	if *showVersion {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("read migration version", zap.Error(err))
		}
		log.Info("migration version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return
	}
	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		log.Fatal("migrate", zap.String("direction", *direction), zap.Error(err))
	}
	log.Info("migrations applied", zap.String("direction", *direction))
}
