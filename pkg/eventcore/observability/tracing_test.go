package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest installs a test tracer provider with an in-memory exporter.
func setupTracingTest(t *testing.T) *tracetest.InMemoryExporter {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("eventcore")

	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		tracer = otel.Tracer("eventcore")
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	})
	return exporter
}

func attrValue(attrs []attribute.KeyValue, key string) string {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.AsString()
		}
	}
	return ""
}

func TestStartPublishSpan(t *testing.T) {
	exporter := setupTracingTest(t)

	_, span := NewSpanManager().StartPublishSpan(context.Background(), "OrderPlaced")
	EndSpanWithError(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "eventcore.publish", spans[0].Name)
	assert.Equal(t, "OrderPlaced", attrValue(spans[0].Attributes, "event.type"))
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestStartStageSpan(t *testing.T) {
	exporter := setupTracingTest(t)

	sm := NewSpanManager()
	_, span := sm.StartStageSpan(context.Background(), "u-1", "before_completion")
	sm.EndSpanWithError(span, errors.New("veto"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "eventcore.unit.before_completion", spans[0].Name)
	assert.Equal(t, "u-1", attrValue(spans[0].Attributes, "unit.id"))
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "veto", spans[0].Status.Description)
	require.NotEmpty(t, spans[0].Events, "error should be recorded as a span event")
}

func TestAddSpanEvent(t *testing.T) {
	exporter := setupTracingTest(t)

	ctx, span := StartPublishSpan(context.Background(), "OrderPlaced")
	NewSpanManager().AddSpanEvent(ctx, "handler.skipped", attribute.String("handler_id", "h1"))
	span.End()

	// no recording span in a bare context
	AddSpanEvent(context.Background(), "ignored")

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "handler.skipped", spans[0].Events[0].Name)
}

func TestEndSpanWithErrorNilSpan(t *testing.T) {
	assert.NotPanics(t, func() { EndSpanWithError(nil, errors.New("x")) })
}
