package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"records-dashboard/backend/internal/audit/domain"
)

// KafkaSink publishes audit events as JSON to a Kafka topic for the notification worker.
// Messages are keyed by org so one org's events stay ordered within a partition.
type KafkaSink struct {
	writer  *kafka.Writer
	log     *zap.Logger
	timeout time.Duration
}

// NewKafkaSink returns a sink writing to topic on brokers, or nil when either is unset.
// Call Close when shutting down.
func NewKafkaSink(brokers []string, topic string, log *zap.Logger) *KafkaSink {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaSink{writer: writer, log: log, timeout: 5 * time.Second}
}

// Record writes the event synchronously with a bounded timeout. Failures are logged.
func (k *KafkaSink) Record(ctx context.Context, event domain.Event) {
	if k == nil || k.writer == nil {
		return
	}
	event = Normalize(event)
	payload, err := json.Marshal(event)
	if err != nil {
		k.log.Warn("audit: failed to encode event", zap.String("action", event.Action), zap.Error(err))
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	if err := k.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(event.OrgID), Value: payload}); err != nil {
		k.log.Warn("audit: kafka publish failed",
			zap.String("action", event.Action),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

// Close closes the Kafka writer. Safe on a nil sink.
func (k *KafkaSink) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
