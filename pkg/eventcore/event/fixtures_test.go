package event_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventcore/pkg/eventcore/event"
)

// Auditable and Notifiable are marker interfaces.
type Auditable interface {
	event.Event
	AuditTrail() string
}

type Notifiable interface {
	event.Event
	Channel() string
}

// Reversible is implemented by Settled but only registered by some tests.
type Reversible interface {
	event.Event
	Reverse() Settled
}

// Posted is the base of Settled.
type Posted struct {
	event.Base
	Amount int
}

type Settled struct {
	Posted
	Ref string
}

func (Settled) AuditTrail() string { return "ledger" }
func (Settled) Channel() string { return "email" }
func (s Settled) Reverse() Settled { return Settled{Posted: Posted{Amount: -s.Amount}, Ref: s.Ref} }

type OrderPlaced struct {
	event.Occurred
	OrderID string
	Total   int
}

type Shipped struct {
	event.Base
	OrderID string
}

// pointerEvent implements Event only through its pointer.
type pointerEvent struct {
	Name string
}

func (*pointerEvent) EventMarker() {}

// logCapture collects JSON log records.
type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func newLogCapture() (*logCapture, *slog.Logger) {
	c := &logCapture{}
	return c, slog.New(slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// records returns the captured records at level.
func (c *logCapture) records(t *testing.T, level string) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(c.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		if rec["level"] == level {
			out = append(out, rec)
		}
	}
	return out
}

// fakeMetrics counts drops and batch sizes.
type fakeMetrics struct {
	mu      sync.Mutex
	dropped map[string]int
	batches []int
	errors  int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{dropped: make(map[string]int)}
}

func (m *fakeMetrics) RecordPublish(context.Context, string, int, time.Duration, error) {}

func (m *fakeMetrics) RecordHandler(_ context.Context, _ string, err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

func (m *fakeMetrics) RecordDropped(_ context.Context, _ string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason]++
}

func (m *fakeMetrics) RecordBatch(_ context.Context, _ string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, size)
}

func (m *fakeMetrics) RecordCacheLookup(context.Context, bool) {}

func newAggregator(t *testing.T, opts ...event.Option) *event.Aggregator {
	t.Helper()
	agg := event.NewAggregator(opts...)
	t.Cleanup(agg.Close)
	return agg
}

// subscribe is Subscribe that fails the test on error.
func subscribe[T event.Event](t *testing.T, target event.Target, fn func(context.Context, T) error, opts ...event.SubscribeOption) func() {
	t.Helper()
	unsub, err := event.Subscribe(target, fn, opts...)
	require.NoError(t, err)
	return unsub
}
