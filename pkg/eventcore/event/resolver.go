package event

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/eventcore/pkg/eventcore/observability"
	"github.com/randalmurphal/eventcore/pkg/eventcore/registry"
)

var eventType = reflect.TypeFor[Event]()

// Default worker pool sizing for cache population.
const (
	DefaultCacheWorkers   = 2
	DefaultCacheQueueSize = 64
)

// Resolver computes the subscribable types of a concrete event type:
// the chain of exported embedded event structs (derived first), followed by
// every registered marker interface the type implements.
//
// Results are cached. A miss computes the answer synchronously and hands the
// cache write to a small worker pool; readers never wait on population.
type Resolver struct {
	// cache is keyed by the exact type: *T can pick up markers that T lacks.
	cache *registry.Registry[reflect.Type, []reflect.Type]

	// mu serializes marker registration against cache writes.
	mu      sync.Mutex
	markers atomic.Pointer[[]reflect.Type]
	gen     atomic.Uint64

	pending sync.Map // reflect.Type -> struct{}

	workers   int
	queueSize int
	jobs      chan populateJob
	done      chan struct{}
	closeMu   sync.RWMutex
	closed    bool
	wg        sync.WaitGroup

	logger  *slog.Logger
	metrics observability.MetricsRecorder

	compute func(t reflect.Type, markers []reflect.Type) []reflect.Type
}

type populateJob struct {
	t   reflect.Type
	gen uint64
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCacheWorkers sets the population pool size and its queue bound.
// Zero workers populates the cache inline.
func WithCacheWorkers(workers, queueSize int) ResolverOption {
	return func(r *Resolver) {
		r.workers = max(workers, 0)
		r.queueSize = max(queueSize, 0)
	}
}

// WithResolverLogger sets the logger used for cache population failures.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithResolverMetrics sets the recorder for cache hit/miss counts.
func WithResolverMetrics(m observability.MetricsRecorder) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a Resolver and starts its population workers.
// Call Close to stop them.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cache:     registry.New[reflect.Type, []reflect.Type](),
		workers:   DefaultCacheWorkers,
		queueSize: DefaultCacheQueueSize,
		done:      make(chan struct{}),
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
		compute:   hierarchy,
	}
	empty := []reflect.Type{}
	r.markers.Store(&empty)

	for _, opt := range opts {
		opt(r)
	}

	if r.workers > 0 {
		r.jobs = make(chan populateJob, r.queueSize)
		for range r.workers {
			r.wg.Add(1)
			go r.work()
		}
	}
	return r
}

// RegisterMarker adds an interface type to the closed set of marker
// interfaces. The interface must itself implement Event. Registering a
// marker invalidates every cached result.
func (r *Resolver) RegisterMarker(t reflect.Type) error {
	if t == nil || t.Kind() != reflect.Interface {
		return fmt.Errorf("%w: %v", ErrNotMarker, t)
	}
	if !t.Implements(eventType) {
		return fmt.Errorf("%w: %v", ErrNotEvent, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.loadMarkers()
	if slices.Contains(current, t) {
		return nil
	}
	next := append(slices.Clone(current), t)
	r.markers.Store(&next)
	r.gen.Add(1)
	r.cache.Clear()
	return nil
}

// RegisterMarkerFor registers the interface type I as a marker on r.
func RegisterMarkerFor[I Event](r *Resolver) error {
	return r.RegisterMarker(reflect.TypeFor[I]())
}

// Markers returns the registered marker interfaces in registration order.
func (r *Resolver) Markers() []reflect.Type {
	return slices.Clone(r.loadMarkers())
}

// SubscribableTypesOf resolves the subscribable types of ev's dynamic type.
func (r *Resolver) SubscribableTypesOf(ev Event) []reflect.Type {
	if ev == nil {
		return nil
	}
	return r.SubscribableTypes(reflect.TypeOf(ev))
}

// SubscribableTypes returns the ordered, deduplicated subscribable types of t.
// A type that does not implement Event yields an empty result.
// The returned slice is shared and must not be modified.
func (r *Resolver) SubscribableTypes(t reflect.Type) []reflect.Type {
	if t == nil {
		return nil
	}
	if types, ok := r.cache.Get(t); ok {
		r.metrics.RecordCacheLookup(context.Background(), true)
		return types
	}
	r.metrics.RecordCacheLookup(context.Background(), false)

	job := populateJob{t: t, gen: r.gen.Load()}
	types := r.compute(t, r.loadMarkers())
	r.schedule(job)
	return types
}

// Cached reports whether t currently has a cached result.
func (r *Resolver) Cached(t reflect.Type) bool {
	return r.cache.Has(t)
}

// Close stops the population workers. Later misses populate inline.
// Close is idempotent.
func (r *Resolver) Close() {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return
	}
	r.closed = true
	r.closeMu.Unlock()

	close(r.done)
	r.wg.Wait()

	// Nothing can enqueue once closed is set; finish what was accepted.
	if r.jobs == nil {
		return
	}
	for {
		select {
		case job := <-r.jobs:
			r.populate(job)
		default:
			return
		}
	}
}

func (r *Resolver) loadMarkers() []reflect.Type {
	return *r.markers.Load()
}

// schedule hands job to the pool without blocking. When the queue is full
// the job is dropped and a later miss retries.
func (r *Resolver) schedule(job populateJob) {
	if _, busy := r.pending.LoadOrStore(job.t, struct{}{}); busy {
		return
	}

	r.closeMu.RLock()
	if r.workers == 0 || r.closed {
		r.closeMu.RUnlock()
		r.populate(job)
		return
	}
	select {
	case r.jobs <- job:
	default:
		r.pending.Delete(job.t)
	}
	r.closeMu.RUnlock()
}

func (r *Resolver) work() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case job := <-r.jobs:
			r.populate(job)
		}
	}
}

func (r *Resolver) populate(job populateJob) {
	defer r.pending.Delete(job.t)
	defer func() {
		if p := recover(); p != nil {
			observability.LogCacheError(r.logger, job.t.String(), fmt.Errorf("panic: %v", p))
		}
	}()

	types := r.compute(job.t, r.loadMarkers())

	r.mu.Lock()
	defer r.mu.Unlock()
	// A marker registered since the miss makes this result stale.
	if r.gen.Load() != job.gen {
		return
	}
	r.cache.Register(job.t, types)
}

// hierarchy is the pure resolution function behind the cache.
func hierarchy(t reflect.Type, markers []reflect.Type) []reflect.Type {
	if !implementsEvent(t) {
		return []reflect.Type{}
	}

	types := make([]reflect.Type, 0, 4)
	seen := make(map[reflect.Type]struct{}, 4)
	add := func(x reflect.Type) {
		if _, ok := seen[x]; ok {
			return
		}
		seen[x] = struct{}{}
		types = append(types, x)
	}

	walkChain(indirect(t), add)
	for _, m := range markers {
		if t.Implements(m) {
			add(m)
		}
	}
	return types
}

// walkChain visits t and then, depth first in field order, every exported
// embedded struct that implements Event.
func walkChain(t reflect.Type, visit func(reflect.Type)) {
	visit(t)
	if t.Kind() != reflect.Struct {
		return
	}
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.Anonymous || !f.IsExported() {
			continue
		}
		ft := indirect(f.Type)
		if ft.Kind() == reflect.Struct && implementsEvent(ft) {
			walkChain(ft, visit)
		}
	}
}

func implementsEvent(t reflect.Type) bool {
	if t.Implements(eventType) {
		return true
	}
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return false
	}
	return reflect.PointerTo(t).Implements(eventType)
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// keyOf is the registry key for handlers of type t.
func keyOf(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Interface {
		return t
	}
	return indirect(t)
}

// typeName is the stable label used in logs and metrics.
func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return indirect(t).String()
}
