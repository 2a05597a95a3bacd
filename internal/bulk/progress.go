package bulk

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Progress is one advisory progress report for a running batch.
type Progress struct {
	OperationID string `json:"operationId"`
	Kind        Kind   `json:"kind"`
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
	Percent     int    `json:"percent"`
}

// ProgressObserver receives progress after every processed target. Errors are ignored by the coordinator.
type ProgressObserver interface {
	Observe(ctx context.Context, p Progress) error
}

// ObserverFunc adapts a function to ProgressObserver.
type ObserverFunc func(ctx context.Context, p Progress) error

func (f ObserverFunc) Observe(ctx context.Context, p Progress) error { return f(ctx, p) }

// NopObserver drops progress reports.
type NopObserver struct{}

func (NopObserver) Observe(context.Context, Progress) error { return nil }

// ProgressChannel returns the pub/sub channel a batch publishes to.
func ProgressChannel(operationID string) string {
	return "bulk:progress:" + operationID
}

// RedisPublisher publishes progress as JSON on a per-operation Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	log     *zap.Logger
	timeout time.Duration
}

// NewRedisPublisher connects to Redis and verifies the connection with PING.
func NewRedisPublisher(addr, password string, db int, log *zap.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisPublisherWithClient(client, log), nil
}

// NewRedisPublisherWithClient wraps an existing client. log may be nil.
func NewRedisPublisherWithClient(client *redis.Client, log *zap.Logger) *RedisPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisPublisher{client: client, log: log, timeout: 250 * time.Millisecond}
}

// Observe publishes p. A slow or unavailable Redis only costs the short publish timeout.
func (p *RedisPublisher) Observe(ctx context.Context, pr Progress) error {
	payload, err := json.Marshal(pr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, ProgressChannel(pr.OperationID), payload).Err(); err != nil {
		p.log.Debug("bulk progress publish failed", zap.String("operation_id", pr.OperationID), zap.Error(err))
		return err
	}
	return nil
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// fanout delivers each report to every observer.
type fanout []ProgressObserver

func (f fanout) Observe(ctx context.Context, p Progress) error {
	for _, o := range f {
		if o != nil {
			_ = o.Observe(ctx, p)
		}
	}
	return nil
}
