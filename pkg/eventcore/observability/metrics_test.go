package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest installs a test meter provider and returns its reader.
func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value of the data point carrying attr.
func sumFor(t *testing.T, m *metricdata.Metrics, attr attribute.KeyValue) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "Expected Sum type")
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestRecordPublish(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordPublish(ctx, "OrderPlaced", 2, 3*time.Millisecond, nil)
	m.RecordPublish(ctx, "OrderPlaced", 2, time.Millisecond, errors.New("boom"))

	rm := collectMetrics(t, reader)
	count := findMetric(rm, "eventcore.publish.count")
	assert.Equal(t, int64(2), sumFor(t, count, attribute.String("event_type", "OrderPlaced")))
	assert.Equal(t, int64(1), sumFor(t, count, attribute.Bool("success", false)))

	latency := findMetric(rm, "eventcore.publish.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "Expected Histogram type")
	assert.NotEmpty(t, hist.DataPoints)
}

func TestRecordHandler(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordHandler(ctx, "OrderPlaced", nil)
	m.RecordHandler(ctx, "OrderPlaced", nil)
	m.RecordHandler(ctx, "OrderPlaced", errors.New("boom"))

	rm := collectMetrics(t, reader)
	typ := attribute.String("event_type", "OrderPlaced")
	assert.Equal(t, int64(3), sumFor(t, findMetric(rm, "eventcore.handler.invocations"), typ))
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "eventcore.handler.errors"), typ))
}

func TestRecordDroppedBatchAndCache(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordDropped(ctx, "OrderPlaced", "stage_fired")
	m.RecordBatch(ctx, "OrderPlaced", 3)
	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, false)
	m.RecordCacheLookup(ctx, true)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "eventcore.delivery.dropped"),
		attribute.String("reason", "stage_fired")))
	assert.Equal(t, int64(2), sumFor(t, findMetric(rm, "eventcore.resolver.cache"),
		attribute.Bool("hit", true)))

	batch := findMetric(rm, "eventcore.batch.size")
	require.NotNil(t, batch)
	hist, ok := batch.Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, int64(3), hist.DataPoints[0].Sum)
}
