// worker consumes audit events from Kafka and pushes them to Loki.
// Requires KAFKA_BROKERS and LOKI_URL; AUDIT_KAFKA_TOPIC and KAFKA_GROUP_ID have defaults.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"records-dashboard/backend/internal/config"
	"records-dashboard/backend/internal/platform/logging"
	"records-dashboard/backend/internal/telemetry/loki"
)

const pushTimeout = 10 * time.Second

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

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required")
	}
	client, err := loki.NewClient(cfg.LokiURL, "", pushTimeout)
	if err != nil {
		log.Fatal("LOKI_URL is required", zap.Error(err))
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.AuditKafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("consuming audit events",
		zap.String("topic", cfg.AuditKafkaTopic), zap.String("group", cfg.KafkaGroupID), zap.String("loki", cfg.LokiURL))
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("stopped")
				return
			}
			log.Warn("kafka fetch", zap.Error(err))
			continue
		}
		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		err = client.PushAuditJSON(pushCtx, msg.Value)
		cancel()
		if err != nil {
			// Leave the offset uncommitted so the event is redelivered after a restart.
			log.Error("loki push", zap.Error(err), zap.Int64("offset", msg.Offset), zap.Int("partition", msg.Partition))
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn("kafka commit", zap.Error(err))
		}
	}
}
