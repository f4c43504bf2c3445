package unitofwork

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventcore/pkg/eventcore/event"
	"github.com/randalmurphal/eventcore/pkg/eventcore/observability"
)

// ErrNotActive is returned by Complete on a unit that already completed,
// failed or closed.
var ErrNotActive = errors.New("unit of work is not active")

// State is the completion outcome of a unit.
type State int

const (
	Active State = iota
	Committed
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var stages = []event.Stage{event.BeforeCompletion, event.AfterCompletion, event.Finished}

type callback struct {
	fn        func(context.Context) error
	cancelled atomic.Bool
}

// Unit is one unit of work. It is safe for concurrent use.
type Unit struct {
	id     string
	logger *slog.Logger
	spans  observability.SpanManager
	commit func(context.Context) error

	mu         sync.Mutex
	state      State
	completing bool
	closed     bool
	fired      map[event.Stage]bool
	callbacks  map[event.Stage][]*callback
	storage    map[any]any
}

var _ event.Unit = (*Unit)(nil)

// Option configures a Unit.
type Option func(*Unit)

// WithID sets the unit id (default: auto-generated UUID).
func WithID(id string) Option {
	return func(u *Unit) {
		u.id = id
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(u *Unit) {
		u.logger = logger
	}
}

// WithSpanManager traces each fired stage.
func WithSpanManager(s observability.SpanManager) Option {
	return func(u *Unit) {
		u.spans = s
	}
}

// WithCommit sets the hook run between BeforeCompletion and AfterCompletion.
func WithCommit(fn func(context.Context) error) Option {
	return func(u *Unit) {
		u.commit = fn
	}
}

// Begin starts a unit of work and returns a context carrying it.
func Begin(ctx context.Context, opts ...Option) (context.Context, *Unit) {
	u := &Unit{
		id:        uuid.New().String(),
		logger:    slog.Default(),
		spans:     observability.NoopSpanManager{},
		fired:     make(map[event.Stage]bool, len(stages)),
		callbacks: make(map[event.Stage][]*callback, len(stages)),
		storage:   make(map[any]any),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.spans == nil {
		u.spans = observability.NoopSpanManager{}
	}
	u.logger = observability.WithUnit(u.logger, u.id)
	return event.WithUnit(ctx, u), u
}

// From returns the *Unit carried by ctx.
func From(ctx context.Context) (*Unit, bool) {
	eu, ok := event.UnitFrom(ctx)
	if !ok {
		return nil, false
	}
	u, ok := eu.(*Unit)
	return u, ok
}

// ID returns the unit id.
func (u *Unit) ID() string {
	return u.id
}

// State returns the completion outcome so far.
func (u *Unit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Closed reports whether Finished has fired.
func (u *Unit) Closed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closed
}

// On attaches fn to stage. Callbacks run in attachment order.
func (u *Unit) On(stage event.Stage, fn func(context.Context) error) (func(), error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: %d", event.ErrInvalidStage, int(stage))
	}
	if fn == nil {
		return nil, event.ErrNilHandler
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fired[stage] {
		return nil, fmt.Errorf("%w: %s", event.ErrStageFired, stage)
	}
	cb := &callback{fn: fn}
	u.callbacks[stage] = append(u.callbacks[stage], cb)
	return func() { cb.cancelled.Store(true) }, nil
}

// Get returns the value stored under key.
func (u *Unit) Get(key any) (any, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	v, ok := u.storage[key]
	return v, ok
}

// Set stores value under key for the lifetime of the unit.
func (u *Unit) Set(key, value any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.storage[key] = value
}

// Release removes key.
func (u *Unit) Release(key any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.storage, key)
}

// Complete fires BeforeCompletion, runs the commit hook and fires
// AfterCompletion. The first BeforeCompletion error, or a commit error,
// fails the unit and is returned; AfterCompletion then never fires.
// Only one Complete runs per unit; concurrent or later calls get
// ErrNotActive. A unit closed while completing stays failed.
func (u *Unit) Complete(ctx context.Context) error {
	u.mu.Lock()
	if u.state != Active || u.closed || u.completing {
		u.mu.Unlock()
		return ErrNotActive
	}
	u.completing = true
	u.mu.Unlock()

	if err := u.fire(ctx, event.BeforeCompletion, true); err != nil {
		u.fail()
		return fmt.Errorf("before completion: %w", err)
	}
	if u.commit != nil {
		if err := u.commit(ctx); err != nil {
			u.fail()
			return fmt.Errorf("commit: %w", err)
		}
	}

	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return fmt.Errorf("commit: %w", ErrNotActive)
	}
	u.state = Committed
	u.mu.Unlock()

	if err := u.fire(ctx, event.AfterCompletion, false); err != nil {
		return fmt.Errorf("after completion: %w", err)
	}
	return nil
}

// Close fires Finished exactly once and drops the unit's storage.
// A unit closed without Complete is marked failed. Later calls return nil.
func (u *Unit) Close(ctx context.Context) error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	if u.state == Active {
		u.state = Failed
	}
	// Stages that have not fired by now never will.
	for _, s := range []event.Stage{event.BeforeCompletion, event.AfterCompletion} {
		if !u.fired[s] {
			u.fired[s] = true
			delete(u.callbacks, s)
		}
	}
	u.mu.Unlock()

	err := u.fire(ctx, event.Finished, false)

	u.mu.Lock()
	clear(u.storage)
	u.mu.Unlock()

	if err != nil {
		return fmt.Errorf("finished: %w", err)
	}
	return nil
}

func (u *Unit) fail() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state = Failed
	if !u.fired[event.AfterCompletion] {
		u.fired[event.AfterCompletion] = true
		delete(u.callbacks, event.AfterCompletion)
	}
}

// fire runs the callbacks of stage outside the lock. Callbacks attached to
// the same stage while it runs are rejected with ErrStageFired. With
// stopOnError the first error ends the stage; otherwise every callback runs
// and errors are joined. Callbacks see u in their context.
func (u *Unit) fire(ctx context.Context, stage event.Stage, stopOnError bool) error {
	u.mu.Lock()
	if u.fired[stage] {
		u.mu.Unlock()
		return nil
	}
	u.fired[stage] = true
	cbs := u.callbacks[stage]
	delete(u.callbacks, stage)
	u.mu.Unlock()

	ctx = event.WithUnit(ctx, u)
	ctx, span := u.spans.StartStageSpan(ctx, u.id, stage.String())

	var errs []error
	for _, cb := range cbs {
		if cb.cancelled.Load() {
			continue
		}
		if err := cb.fn(ctx); err != nil {
			errs = append(errs, err)
			if stopOnError {
				break
			}
		}
	}

	err := errors.Join(errs...)
	u.spans.EndSpanWithError(span, err)
	observability.LogUnitStage(u.logger, u.id, stage.String(), len(cbs), err)
	return err
}

// Run begins a unit, calls fn with its context, completes the unit when fn
// succeeds and always closes it. Errors from every step are joined.
func Run(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) (err error) {
	ctx, u := Begin(ctx, opts...)
	defer func() {
		err = errors.Join(err, u.Close(ctx))
	}()

	if err = fn(ctx); err != nil {
		return err
	}
	return u.Complete(ctx)
}
