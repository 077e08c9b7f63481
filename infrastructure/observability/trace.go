package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of agent spans.
const TracerName = "github.com/felixgeelhaar/itinerary/agent"

// PlaceSpanName names the span around one station invocation.
const PlaceSpanName = "place.process"

// StartPlaceSpan starts the span around one station invocation using the
// global tracer provider.
func StartPlaceSpan(ctx context.Context, placeKey, agentID string, count int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, PlaceSpanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("place.key", placeKey),
			attribute.String("agent.id", agentID),
			attribute.Int("payload.count", count),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
