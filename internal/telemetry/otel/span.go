package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"records-dashboard/backend/internal/platform/apperr"
)

const instrumentationName = "records-dashboard/backend"

// StartSpan starts a span named name on the global TracerProvider. The returned func ends the span;
// pass it the operation's error so business-rule failures are tagged with their kind and
// store failures mark the span as errored.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			kind := apperr.KindOf(err)
			span.SetAttributes(attribute.String("error.kind", string(kind)))
			if kind == apperr.KindUnavailable {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
	}
}
