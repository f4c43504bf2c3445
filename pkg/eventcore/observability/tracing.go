package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("eventcore")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartPublishSpan starts a span around one synchronous dispatch.
	StartPublishSpan(ctx context.Context, eventType string) (context.Context, trace.Span)

	// StartStageSpan starts a span around one unit-of-work lifecycle stage.
	StartStageSpan(ctx context.Context, unitID, stage string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses the global OTel tracer provider.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartPublishSpan(ctx context.Context, eventType string) (context.Context, trace.Span) {
	return StartPublishSpan(ctx, eventType)
}

func (m *otelSpanManager) StartStageSpan(ctx context.Context, unitID, stage string) (context.Context, trace.Span) {
	return StartStageSpan(ctx, unitID, stage)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartPublishSpan starts a span around one synchronous dispatch.
// Uses the global OTel tracer.
func StartPublishSpan(ctx context.Context, eventType string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventcore.publish",
		trace.WithAttributes(attribute.String("event.type", eventType)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartStageSpan starts a span around one unit-of-work stage.
// Uses the global OTel tracer.
func StartStageSpan(ctx context.Context, unitID, stage string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventcore.unit."+stage,
		trace.WithAttributes(
			attribute.String("unit.id", unitID),
			attribute.String("unit.stage", stage),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
