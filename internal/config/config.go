// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health server; empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty runs the server on the in-memory store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// JWTPublicKey is the PEM-encoded public key used to validate access tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPrivateKey is the PEM-encoded private key; only cmd/seed needs it to issue dev tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAudience   string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the lifetime of issued dev tokens (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`

	// InvitationTTL, TransferTTL and OrgPurgeAfter are Go durations (e.g. "168h").
	InvitationTTL string `mapstructure:"INVITATION_TTL"`
	TransferTTL   string `mapstructure:"TRANSFER_TTL"`
	OrgPurgeAfter string `mapstructure:"ORG_PURGE_AFTER"`
	// BulkMaxTargets caps the number of ids in one bulk batch.
	BulkMaxTargets int `mapstructure:"BULK_MAX_TARGETS"`
	// InvitationPolicyPath is an optional Rego file replacing the built-in invitation policy.
	InvitationPolicyPath string `mapstructure:"INVITATION_POLICY_PATH"`

	// KafkaBrokers is a comma-separated list of broker addresses. When set, audit events are published to Kafka.
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`
	// Worker-only: consumer group and Loki push URL for the audit worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	LokiURL      string `mapstructure:"LOKI_URL"`

	// RedisAddr enables publishing bulk progress over Redis pub/sub.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// CORSAllowedOrigins is a comma-separated list of origins allowed to call the API.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// Env is the application environment (e.g. "development", "production").
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":8081")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_ISSUER", "records-dashboard-auth")
	v.SetDefault("JWT_AUDIENCE", "records-dashboard-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("INVITATION_TTL", "168h")
	v.SetDefault("TRANSFER_TTL", "168h")
	v.SetDefault("ORG_PURGE_AFTER", "720h")
	v.SetDefault("BULK_MAX_TARGETS", 100)
	v.SetDefault("INVITATION_POLICY_PATH", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "records-dashboard-audit")
	v.SetDefault("KAFKA_GROUP_ID", "records-dashboard-audit-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "records-dashboard")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	for key, val := range map[string]string{
		"JWT_ACCESS_TTL":  c.JWTAccessTTL,
		"INVITATION_TTL":  c.InvitationTTL,
		"TRANSFER_TTL":    c.TransferTTL,
		"ORG_PURGE_AFTER": c.OrgPurgeAfter,
	} {
		if val == "" {
			continue
		}
		if d, err := time.ParseDuration(val); err != nil || d <= 0 {
			return fmt.Errorf("config: %s must be a positive duration, got %q", key, val)
		}
	}
	if c.BulkMaxTargets < 0 || c.BulkMaxTargets > 1000 {
		return errors.New("config: BULK_MAX_TARGETS must be between 0 and 1000")
	}
	if c.Env == "production" && strings.TrimSpace(c.JWTPublicKey) == "" {
		return errors.New("config: JWT_PUBLIC_KEY must be set when APP_ENV=production")
	}
	return nil
}

func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// AccessTTL parses JWTAccessTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration { return duration(c.JWTAccessTTL, 15*time.Minute) }

// InvitationValidity parses InvitationTTL. Returns 7 days if unset or invalid.
func (c *Config) InvitationValidity() time.Duration { return duration(c.InvitationTTL, 168*time.Hour) }

// TransferValidity parses TransferTTL. Returns 7 days if unset or invalid.
func (c *Config) TransferValidity() time.Duration { return duration(c.TransferTTL, 168*time.Hour) }

// PurgeAfter parses OrgPurgeAfter. Returns 30 days if unset or invalid.
func (c *Config) PurgeAfter() time.Duration { return duration(c.OrgPurgeAfter, 720*time.Hour) }

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string { return splitList(c.KafkaBrokers) }

// CORSOrigins returns the allowed origins from the comma-separated config.
func (c *Config) CORSOrigins() []string { return splitList(c.CORSAllowedOrigins) }

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
