package otel

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"

	"records-dashboard/backend/internal/platform/apperr"
)

func TestNewProviders_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		p, err := NewProviders(ctx, Options{Endpoint: endpoint, ServiceName: "records-dashboard"}, nil)
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if p.TracerProvider == nil || p.MeterProvider == nil || p.LoggerProvider == nil {
			t.Fatalf("providers = %+v", p)
		}
		if err := p.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"://invalid", "http://[invalid", "http://"} {
		if _, err := NewProviders(context.Background(), Options{Endpoint: endpoint}, nil); err == nil {
			t.Errorf("NewProviders(%q) should fail", endpoint)
		}
	}
}

func TestOTLPTarget(t *testing.T) {
	tests := []struct {
		endpoint     string
		target       string
		wantInsecure bool
	}{
		{"localhost:4317", "localhost:4317", true},
		{"http://collector:4317", "collector:4317", true},
		{"https://collector:4317", "collector:4317", false},
		{"http://collector:4317/v1/traces", "collector:4317", true},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			target, insecure, err := otlpTarget(tt.endpoint)
			if err != nil {
				t.Fatal(err)
			}
			if target != tt.target || insecure != tt.wantInsecure {
				t.Errorf("otlpTarget = %q, %v; want %q, %v", target, insecure, tt.target, tt.wantInsecure)
			}
		})
	}
}

func TestSetGlobal(t *testing.T) {
	p, err := NewProviders(context.Background(), Options{ServiceName: "records-dashboard"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})
	p.SetGlobal()
	if otel.GetTracerProvider() != p.TracerProvider {
		t.Error("global tracer provider not installed")
	}
	if otel.GetMeterProvider() != p.MeterProvider {
		t.Error("global meter provider not installed")
	}
}

func TestStartSpan_EndsWithAndWithoutError(t *testing.T) {
	ctx, end := StartSpan(context.Background(), "test.op")
	if ctx == nil {
		t.Fatal("nil context")
	}
	end(nil)
	_, end = StartSpan(context.Background(), "test.op")
	end(apperr.Forbidden("no"))
	_, end = StartSpan(context.Background(), "test.op")
	end(errors.New("connection reset"))
}
