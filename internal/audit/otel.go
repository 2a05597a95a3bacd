package audit

import (
	"context"
	"sort"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"records-dashboard/backend/internal/audit/domain"
)

// LogEmitter is the subset of otellog.Logger used by OTelSink.
type LogEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// OTelSink exports audit events as OpenTelemetry log records.
type OTelSink struct {
	logger LogEmitter
}

// NewOTelSink returns a sink on provider, or Nop when provider is nil.
func NewOTelSink(provider *sdklog.LoggerProvider) Sink {
	if provider == nil {
		return Nop{}
	}
	return &OTelSink{logger: provider.Logger("records-dashboard.audit")}
}

// NewOTelSinkWithLogger returns a sink that emits to logger. Used in tests.
func NewOTelSinkWithLogger(logger LogEmitter) *OTelSink {
	return &OTelSink{logger: logger}
}

// Record implements Sink.
func (o *OTelSink) Record(ctx context.Context, event domain.Event) {
	event = Normalize(event)
	rec := otellog.Record{}
	rec.SetTimestamp(event.Timestamp)
	rec.SetBody(otellog.StringValue(event.Action))
	rec.AddAttributes(
		otellog.String("event_id", event.ID),
		otellog.String("org_id", event.OrgID),
		otellog.String("actor_id", event.ActorID),
		otellog.String("action", event.Action),
		otellog.String("target_type", event.TargetType),
		otellog.String("target_id", event.TargetID),
		otellog.String("outcome", event.Outcome),
	)
	if event.IP != "" {
		rec.AddAttributes(otellog.String("ip", event.IP))
	}
	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec.AddAttributes(otellog.String("meta."+k, event.Metadata[k]))
	}
	o.logger.Emit(ctx, rec)
}
