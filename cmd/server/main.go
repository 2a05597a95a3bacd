// server runs the records dashboard access-lifecycle API over HTTP and the gRPC health service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"

	"records-dashboard/backend/internal/audit"
	"records-dashboard/backend/internal/bulk"
	"records-dashboard/backend/internal/config"
	"records-dashboard/backend/internal/db"
	healthhandler "records-dashboard/backend/internal/health/handler"
	invitationservice "records-dashboard/backend/internal/invitation/service"
	membershipservice "records-dashboard/backend/internal/membership/service"
	organizationservice "records-dashboard/backend/internal/organization/service"
	"records-dashboard/backend/internal/platform/logging"
	"records-dashboard/backend/internal/policy/engine"
	"records-dashboard/backend/internal/security"
	"records-dashboard/backend/internal/server"
	"records-dashboard/backend/internal/server/middleware"
	"records-dashboard/backend/internal/store"
	"records-dashboard/backend/internal/store/memory"
	appotel "records-dashboard/backend/internal/telemetry/otel"
	transferservice "records-dashboard/backend/internal/transfer/service"
)

const (
	shutdownTimeout = 15 * time.Second
	healthInterval  = 10 * time.Second
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

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := appotel.NewProviders(ctx, appotel.Options{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Insecure:    cfg.OTelInsecure,
	}, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = providers.Shutdown(sctx)
	}()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens, err := security.NewTokenProviderFromPEM(cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	if err != nil {
		if cfg.JWTPublicKey != "" {
			return fmt.Errorf("jwt: %w", err)
		}
		log.Warn("JWT_PUBLIC_KEY not set; using the built-in development key pair")
		if tokens, err = security.NewTestTokenProvider(); err != nil {
			return err
		}
	}

	policy, err := engine.LoadOPAEvaluator(ctx, cfg.InvitationPolicyPath)
	if err != nil {
		return err
	}

	sinks := audit.Multi{
		audit.NewLogger(st.Repos().Audit, middleware.ClientIPFrom, log),
		audit.NewOTelSink(providers.LoggerProvider),
	}
	if kafkaSink := audit.NewKafkaSink(cfg.KafkaBrokersList(), cfg.AuditKafkaTopic, log); kafkaSink != nil {
		defer func() { _ = kafkaSink.Close() }()
		sinks = append(sinks, kafkaSink)
	}

	var publisher bulk.ProgressObserver
	if cfg.RedisAddr != "" {
		rp, err := bulk.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis unavailable; bulk progress is not published", zap.Error(err))
		} else {
			defer func() { _ = rp.Close() }()
			publisher = rp
		}
	}

	members := membershipservice.NewService(st, sinks)
	invitations := invitationservice.NewService(st, policy, sinks, cfg.InvitationValidity())
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := middleware.NewMetrics(reg)
	if err != nil {
		return err
	}
	checker := healthhandler.NewChecker(st, policy)

	router := server.NewRouter(server.Deps{
		Tokens:        tokens,
		Store:         st,
		Organizations: organizationservice.NewService(st, sinks, cfg.PurgeAfter()),
		Members:       members,
		Invitations:   invitations,
		Transfers:     transferservice.NewService(st, sinks, cfg.TransferValidity()),
		Bulk:          bulk.New(members, invitations, sinks, publisher, cfg.BulkMaxTargets),
		Health:        checker,
		Metrics:       metrics,
		Gatherer:      reg,
		CORSOrigins:   cfg.CORSOrigins(),
		Log:           log,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	hs := health.NewServer()
	grpcSrv := server.NewGRPCServer(hs)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go checker.Watch(ctx, hs, healthInterval, log)
		go func() {
			log.Info("grpc health server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				errc <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		return err
	}
	hs.Shutdown()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	grpcSrv.GracefulStop()
	if err := httpSrv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("stopped")
	return nil
}

// openStore connects to Postgres when DATABASE_URL is set and falls back to the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		if cfg.Env == "production" {
			return nil, nil, errors.New("DATABASE_URL must be set when APP_ENV=production")
		}
		log.Warn("DATABASE_URL not set; using the in-memory store")
		return memory.New(), func() {}, nil
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	return store.NewPostgres(pool), pool.Close, nil
}
