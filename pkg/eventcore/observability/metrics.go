package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records event core metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordPublish records one dispatch with the number of handlers it reached.
	RecordPublish(ctx context.Context, eventType string, handlers int, duration time.Duration, err error)

	// RecordHandler records a single handler invocation.
	RecordHandler(ctx context.Context, eventType string, err error)

	// RecordDropped records a deferred delivery that could not be scheduled.
	RecordDropped(ctx context.Context, eventType, reason string)

	// RecordBatch records the size of a flushed batch.
	RecordBatch(ctx context.Context, eventType string, size int)

	// RecordCacheLookup records a type-hierarchy cache hit or miss.
	RecordCacheLookup(ctx context.Context, hit bool)
}

type otelMetrics struct {
	publishCount   metric.Int64Counter
	publishLatency metric.Float64Histogram
	invocations    metric.Int64Counter
	handlerErrors  metric.Int64Counter
	dropped        metric.Int64Counter
	batchSize      metric.Int64Histogram
	cacheLookups   metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventcore")

	publishCount, err := meter.Int64Counter("eventcore.publish.count",
		metric.WithDescription("Number of published events"),
	)
	if err != nil {
		return nil, err
	}

	publishLatency, err := meter.Float64Histogram("eventcore.publish.latency_ms",
		metric.WithDescription("Synchronous dispatch latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	invocations, err := meter.Int64Counter("eventcore.handler.invocations",
		metric.WithDescription("Number of handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	handlerErrors, err := meter.Int64Counter("eventcore.handler.errors",
		metric.WithDescription("Number of handler invocations that returned an error"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("eventcore.delivery.dropped",
		metric.WithDescription("Deferred deliveries dropped for lack of an open unit or stage"),
	)
	if err != nil {
		return nil, err
	}

	batchSize, err := meter.Int64Histogram("eventcore.batch.size",
		metric.WithDescription("Number of events per flushed batch"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter("eventcore.resolver.cache",
		metric.WithDescription("Type-hierarchy cache lookups"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		publishCount:   publishCount,
		publishLatency: publishLatency,
		invocations:    invocations,
		handlerErrors:  handlerErrors,
		dropped:        dropped,
		batchSize:      batchSize,
		cacheLookups:   cacheLookups,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordPublish(ctx context.Context, eventType string, handlers int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.Bool("success", err == nil),
	)
	m.publishCount.Add(ctx, 1, attrs)
	m.publishLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

func (m *otelMetrics) RecordHandler(ctx context.Context, eventType string, err error) {
	attrs := metric.WithAttributes(attribute.String("event_type", eventType))
	m.invocations.Add(ctx, 1, attrs)
	if err != nil {
		m.handlerErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordDropped(ctx context.Context, eventType, reason string) {
	m.dropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("reason", reason),
	))
}

func (m *otelMetrics) RecordBatch(ctx context.Context, eventType string, size int) {
	m.batchSize.Record(ctx, int64(size), metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

func (m *otelMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}
