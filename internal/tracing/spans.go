package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartSessionSpan creates a child span named "session."+phase for one
// phase ("optimize" or "exec") of a pass over a planned sequence of
// operations.
func StartSessionSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "session."+phase,
		trace.WithAttributes(attribute.String("session.phase", phase)),
	)
}

// StartTierSpan creates a child span for a single tier operation (get,
// save, prefetch, trim) against a named tier ("memory" or "disk").
func StartTierSpan(ctx context.Context, tier, op string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "tier."+tier+"."+op,
		trace.WithAttributes(
			attribute.String("tier.name", tier),
			attribute.String("tier.op", op),
		),
	)
}

// StartDiskIOSpan creates a child span for an asynchronous disk I/O call
// (save/load/delete) keyed by its fingerprint's base-62 filename.
func StartDiskIOSpan(ctx context.Context, filename, op string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "diskio."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("diskio.filename", filename),
			attribute.String("diskio.op", op),
		),
	)
}

// InjectHeaders injects the current trace context (traceparent, tracestate)
// into the given HTTP request headers so the upstream service can continue
// the trace.
func InjectHeaders(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// SetOperationAttributes adds fingerprint-level attributes to the current
// span: the op type, buffer dimensions, and pixel format.
func SetOperationAttributes(ctx context.Context, opTypeID uint64, width, height int, pixelType string) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Int64("operation.op_type_id", int64(opTypeID)),
		attribute.Int("operation.width", width),
		attribute.Int("operation.height", height),
		attribute.String("operation.pixel_type", pixelType),
	)
}

// SetResultAttributes adds the outcome of a Get call to the current span.
func SetResultAttributes(ctx context.Context, tier string, hit bool) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("result.tier", tier),
		attribute.Bool("result.hit", hit),
	)
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
