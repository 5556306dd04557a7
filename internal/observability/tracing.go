package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for all spans.
const TracerName = "structcache"

// Tracer returns the library tracer from the globally installed provider.
// When the host application installs no provider this is a no-op tracer, so
// span emission stays an external concern.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartRequestSpan opens a span for one validated-generation request.
func StartRequestSpan(ctx context.Context, name string, taskType, model string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(
		attribute.String("structcache.task_type", taskType),
		attribute.String("structcache.model", model),
	))
}

// EndSpan records the outcome on a span and ends it.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
