// Package otel wires the OpenTelemetry SDK: OTLP/gRPC exporters for traces, metrics, and logs,
// plus the span helper the services use.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.uber.org/zap"
)

const metricInterval = 10 * time.Second

// Options configures NewProviders.
type Options struct {
	// Endpoint is the collector address, with or without scheme. Any path is ignored.
	// Empty yields SDK providers without exporters.
	Endpoint    string
	ServiceName string
	// Insecure forces plaintext even for https endpoints.
	Insecure bool
}

// Providers holds the SDK providers. Shutdown flushes and stops them in reverse order.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider

	shutdown []func(context.Context) error
	log      *zap.Logger
}

// Shutdown stops every provider and returns the joined errors.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(p.shutdown) - 1; i >= 0; i-- {
		if err := p.shutdown[i](ctx); err != nil {
			p.log.Warn("telemetry shutdown", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetGlobal installs the tracer and meter providers globally so service spans, the bulk
// counters, and otelgrpc pick them up. The logger provider is passed to the audit sink directly.
func (p *Providers) SetGlobal() {
	otel.SetTracerProvider(p.TracerProvider)
	otel.SetMeterProvider(p.MeterProvider)
}

// otlpTarget reduces endpoint to the host:port the gRPC exporters dial. Plain http endpoints
// and endpoints without a scheme are insecure.
func otlpTarget(endpoint string) (target string, insecure bool, err error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, u.Scheme != "https", nil
}

// NewProviders builds the providers described by opts.
func NewProviders(ctx context.Context, opts Options, log *zap.Logger) (*Providers, error) {
	if log == nil {
		log = zap.NewNop()
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(opts.ServiceName),
	))
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return &Providers{
			TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithResource(res)),
			MeterProvider:  metric.NewMeterProvider(metric.WithResource(res)),
			LoggerProvider: sdklog.NewLoggerProvider(sdklog.WithResource(res)),
			log:            log,
		}, nil
	}
	target, insecure, err := otlpTarget(endpoint)
	if err != nil {
		return nil, err
	}
	insecure = insecure || opts.Insecure
	p := &Providers{log: log}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
	if insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
	}
	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, err
	}
	p.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	p.shutdown = append(p.shutdown, p.TracerProvider.Shutdown)

	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
	if insecure {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	p.MeterProvider = metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExp, metric.WithInterval(metricInterval))),
	)
	p.shutdown = append(p.shutdown, p.MeterProvider.Shutdown)

	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(target)}
	if insecure {
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}
	logExp, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	p.LoggerProvider = sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	p.shutdown = append(p.shutdown, p.LoggerProvider.Shutdown)
	return p, nil
}
