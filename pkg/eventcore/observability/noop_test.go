package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	lognoop "go.opentelemetry.io/otel/log/noop"
)

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordPublish(ctx, "OrderPlaced", 1, time.Millisecond, errors.New("x"))
		m.RecordHandler(ctx, "OrderPlaced", nil)
		m.RecordDropped(ctx, "OrderPlaced", "no_unit")
		m.RecordBatch(ctx, "OrderPlaced", 2)
		m.RecordCacheLookup(ctx, false)
	})
}

func TestNoopSpanManager(t *testing.T) {
	var sm SpanManager = NoopSpanManager{}
	ctx := context.Background()

	got, span := sm.StartPublishSpan(ctx, "OrderPlaced")
	assert.Equal(t, ctx, got)
	assert.False(t, span.IsRecording())

	got, span = sm.StartStageSpan(ctx, "u", "finished")
	assert.Equal(t, ctx, got)
	assert.NotPanics(t, func() {
		sm.EndSpanWithError(span, errors.New("x"))
		sm.AddSpanEvent(ctx, "e")
	})
}

func TestNewOTelLogger(t *testing.T) {
	logger := NewOTelLoggerWithProvider("eventcore", lognoop.NewLoggerProvider())
	assert.NotNil(t, logger)
	assert.NotPanics(t, func() {
		LogDeliveryDropped(logger, "OrderPlaced", "finished", "stage already fired")
	})

	assert.NotNil(t, NewOTelLogger("eventcore"))
}
