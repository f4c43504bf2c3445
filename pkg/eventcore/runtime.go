package eventcore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/randalmurphal/eventcore/pkg/eventcore/config"
	"github.com/randalmurphal/eventcore/pkg/eventcore/event"
	"github.com/randalmurphal/eventcore/pkg/eventcore/journal"
	"github.com/randalmurphal/eventcore/pkg/eventcore/observability"
	"github.com/randalmurphal/eventcore/pkg/eventcore/unitofwork"
)

// instrumentationName names the OTel logger when OTel logs are enabled.
const instrumentationName = "github.com/randalmurphal/eventcore"

// Runtime is an Aggregator wired from Settings, with its resolver pool,
// observability and optional journal.
type Runtime struct {
	settings   config.Settings
	logger     *slog.Logger
	spans      observability.SpanManager
	resolver   *event.Resolver
	aggregator *event.Aggregator

	journal     journal.Store
	ownsJournal bool
	detach      func()

	closeOnce sync.Once
	closeErr  error
}

// Option configures New beyond what Settings covers.
type Option func(*options)

type options struct {
	logger *slog.Logger
	store  journal.Store
}

// WithLogger replaces the logger built from Settings.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithJournalStore attaches store instead of opening the configured driver.
// The caller keeps ownership of store.
func WithJournalStore(store journal.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// New validates s and builds a Runtime from it.
//
// Example:
//
//	settings, err := config.LoadSettings("eventcore.yaml")
//	if err != nil {
//	    return err
//	}
//	rt, err := eventcore.New(ctx, settings)
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
func New(ctx context.Context, s config.Settings, opts ...Option) (*Runtime, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	stage := event.AfterCompletion
	if s.JournalStage != "" {
		parsed, err := event.ParseStage(s.JournalStage)
		if err != nil {
			return nil, fmt.Errorf("journal stage: %w", err)
		}
		stage = parsed
	}

	rt := &Runtime{
		settings: s,
		logger:   o.logger,
	}
	if rt.logger == nil {
		rt.logger = newLogger(s)
	}

	var metrics observability.MetricsRecorder = observability.NoopMetrics{}
	if s.MetricsEnabled {
		metrics = observability.NewMetricsRecorder()
	}
	rt.spans = observability.NoopSpanManager{}
	if s.TracingEnabled {
		rt.spans = observability.NewSpanManager()
	}

	rt.resolver = event.NewResolver(
		event.WithCacheWorkers(s.CacheWorkers, s.CacheQueueSize),
		event.WithResolverLogger(rt.logger),
		event.WithResolverMetrics(metrics),
	)
	rt.aggregator = event.NewAggregator(
		event.WithResolver(rt.resolver),
		event.WithLogger(rt.logger),
		event.WithMetrics(metrics),
		event.WithSpanManager(rt.spans),
	)

	rt.journal = o.store
	if rt.journal == nil {
		store, err := openJournal(ctx, s)
		if err != nil {
			rt.resolver.Close()
			return nil, err
		}
		rt.journal = store
		rt.ownsJournal = store != nil
	}
	if rt.journal != nil {
		detach, err := journal.Attach(rt.aggregator, rt.journal, journal.WithStage(stage))
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("attach journal: %w", err)
		}
		rt.detach = detach
	}

	rt.logger.Debug("eventcore runtime started",
		slog.Int("cache_workers", s.CacheWorkers),
		slog.String("journal", s.JournalDriver),
	)
	return rt, nil
}

func newLogger(s config.Settings) *slog.Logger {
	if s.OTelLogs {
		return observability.NewOTelLogger(instrumentationName)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: observability.ParseLevel(s.LogLevel),
	}))
}

func openJournal(ctx context.Context, s config.Settings) (journal.Store, error) {
	switch s.JournalDriver {
	case config.JournalMemory:
		return journal.NewMemoryStore(), nil
	case config.JournalSQLite:
		store, err := journal.NewSQLiteStore(s.JournalDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		return store, nil
	case config.JournalPostgres:
		store, err := journal.NewPostgresStore(ctx, s.JournalDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres journal: %w", err)
		}
		return store, nil
	}
	return nil, nil
}

// Aggregator returns the runtime's aggregator.
func (r *Runtime) Aggregator() *event.Aggregator {
	return r.aggregator
}

// Resolver returns the runtime's type resolver.
func (r *Runtime) Resolver() *event.Resolver {
	return r.resolver
}

// Journal returns the attached journal store, or nil when none is configured.
func (r *Runtime) Journal() journal.Store {
	return r.journal
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *slog.Logger {
	return r.logger
}

// Settings returns the settings the runtime was built from.
func (r *Runtime) Settings() config.Settings {
	return r.settings
}

// Publish publishes ev on the runtime's aggregator.
func (r *Runtime) Publish(ctx context.Context, ev event.Event) error {
	return r.aggregator.Publish(ctx, ev)
}

// Begin starts a unit of work that logs and traces like the runtime.
// opts are applied after the runtime defaults.
func (r *Runtime) Begin(ctx context.Context, opts ...unitofwork.Option) (context.Context, *unitofwork.Unit) {
	return unitofwork.Begin(ctx, r.unitOptions(opts)...)
}

// Run is unitofwork.Run with the runtime's logger and span manager.
func (r *Runtime) Run(ctx context.Context, fn func(ctx context.Context) error, opts ...unitofwork.Option) error {
	return unitofwork.Run(ctx, fn, r.unitOptions(opts)...)
}

func (r *Runtime) unitOptions(opts []unitofwork.Option) []unitofwork.Option {
	return append([]unitofwork.Option{
		unitofwork.WithLogger(r.logger),
		unitofwork.WithSpanManager(r.spans),
	}, opts...)
}

// Close releases what New created. A journal passed with WithJournalStore
// stays open. Close is idempotent.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		if r.detach != nil {
			r.detach()
		}
		r.aggregator.Close()
		r.resolver.Close()

		if r.ownsJournal {
			if err := r.journal.Close(); err != nil {
				r.closeErr = fmt.Errorf("close journal: %w", err)
			}
		}
	})
	return r.closeErr
}
