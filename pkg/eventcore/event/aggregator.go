package event

import (
	"context"
	"log/slog"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/eventcore/pkg/eventcore/observability"
)

// Publisher dispatches events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Target is anything Subscribe can register handlers with: an Aggregator or a Scope.
type Target interface {
	subscribe(d *Descriptor) (func(), error)
	owner() *Aggregator
}

// Aggregator matches published events to handlers and invokes them
// synchronously on the caller's goroutine.
//
// Construct one per process and pass it to the code that publishes and
// subscribes. An Aggregator is safe for concurrent use.
type Aggregator struct {
	resolver     *Resolver
	ownsResolver bool
	handlers     *handlerRegistry

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	// disposed is set when the scope owning this aggregator ends.
	disposed atomic.Bool
}

var (
	_ Publisher = (*Aggregator)(nil)
	_ Target    = (*Aggregator)(nil)
)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithResolver shares an existing Resolver. The Aggregator will not close it.
func WithResolver(r *Resolver) Option {
	return func(a *Aggregator) {
		a.resolver = r
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithMetrics sets the metrics recorder (default NoopMetrics).
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// WithSpanManager sets the span manager (default NoopSpanManager).
func WithSpanManager(s observability.SpanManager) Option {
	return func(a *Aggregator) {
		a.spans = s
	}
}

// NewAggregator creates an Aggregator. Without WithResolver it owns a
// Resolver with default pool sizing, released by Close.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		handlers: newHandlerRegistry(),
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observability.NoopMetrics{}
	}
	if a.spans == nil {
		a.spans = observability.NoopSpanManager{}
	}
	if a.resolver == nil {
		a.resolver = NewResolver(
			WithResolverLogger(a.logger),
			WithResolverMetrics(a.metrics),
		)
		a.ownsResolver = true
	}
	return a
}

// Resolver returns the type resolver used by a.
func (a *Aggregator) Resolver() *Resolver {
	return a.resolver
}

// Logger returns the logger used by a.
func (a *Aggregator) Logger() *slog.Logger {
	return a.logger
}

// HandlerCount returns the number of registered handlers.
func (a *Aggregator) HandlerCount() int {
	return a.handlers.len()
}

// Close releases the owned Resolver, if any.
func (a *Aggregator) Close() {
	if a.ownsResolver {
		a.resolver.Close()
	}
}

func (a *Aggregator) owner() *Aggregator {
	return a
}

func (a *Aggregator) subscribe(d *Descriptor) (func(), error) {
	if a.disposed.Load() {
		return nil, ErrScopeClosed
	}
	if d.Type.Kind() == reflect.Interface {
		if err := a.resolver.RegisterMarker(d.Type); err != nil {
			return nil, err
		}
	}
	return a.handlers.add(d), nil
}

// Publish dispatches ev to every matching handler. When ctx carries a live
// scope defined on a, the scoped handlers run first.
//
// Handlers run in priority order, highest first, ties in registration order.
// The first handler error aborts the dispatch and is returned as a *HandlerError.
// Panics are not recovered.
func (a *Aggregator) Publish(ctx context.Context, ev Event) error {
	if isNil(ev) {
		return ErrNilEvent
	}
	if st := scopeStateFrom(ctx); st != nil && st.parent == a && st.agg != a && !st.agg.disposed.Load() {
		if err := st.agg.dispatch(ctx, ev); err != nil {
			return err
		}
	}
	return a.dispatch(ctx, ev)
}

// PublishAll publishes events in order and stops at the first error.
func (a *Aggregator) PublishAll(ctx context.Context, events ...Event) error {
	for _, ev := range events {
		if err := a.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) dispatch(ctx context.Context, ev Event) (err error) {
	rt := reflect.TypeOf(ev)
	name := typeName(rt)
	start := time.Now()

	ctx, span := a.spans.StartPublishSpan(ctx, name)
	invoked := 0
	defer func() {
		elapsed := time.Since(start)
		a.metrics.RecordPublish(ctx, name, invoked, elapsed, err)
		observability.LogPublish(a.logger, name, invoked, float64(elapsed.Microseconds())/1000)
		a.spans.EndSpanWithError(span, err)
	}()

	for _, d := range a.handlers.match(a.resolver.SubscribableTypes(rt)) {
		if !d.accepts(ev) {
			continue
		}
		invoked++
		herr := d.invoke(ctx, ev)
		a.metrics.RecordHandler(ctx, name, herr)
		if herr != nil {
			observability.LogHandlerError(a.logger, name, d.ID, herr)
			return &HandlerError{DescriptorID: d.ID, EventType: name, Err: herr}
		}
	}
	return nil
}

func (a *Aggregator) dropped(ctx context.Context, ev Event, stage Stage, reason, label string) {
	name := typeName(reflect.TypeOf(ev))
	observability.LogDeliveryDropped(a.logger, name, stage.String(), reason)
	a.metrics.RecordDropped(ctx, name, label)
}

func isNil(ev Event) bool {
	if ev == nil {
		return true
	}
	v := reflect.ValueOf(ev)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
