package event

import (
	"context"
	"sync"

	"github.com/randalmurphal/eventcore/pkg/eventcore/observability"
)

// scopeState is the scoped aggregator shared by every handle of one scope.
type scopeState struct {
	agg    *Aggregator
	parent *Aggregator
}

type scopeKey struct{}

func scopeStateFrom(ctx context.Context) *scopeState {
	if ctx == nil {
		return nil
	}
	st, _ := ctx.Value(scopeKey{}).(*scopeState)
	return st
}

// Scope is a handle on a scoped aggregator. Handlers subscribed through it
// receive events published with the scope's context, and are removed when
// the handle is closed.
//
// Scopes nest: DefineScope on a context that already carries a live scope of
// the same aggregator returns a new handle on the same scoped aggregator.
// Closing the outermost handle disposes the scoped aggregator and every
// handler it holds.
type Scope struct {
	state     *scopeState
	outermost bool

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

var (
	_ Publisher = (*Scope)(nil)
	_ Target    = (*Scope)(nil)
)

// DefineScope returns a context carrying a scope and the handle that owns it.
func (a *Aggregator) DefineScope(ctx context.Context) (context.Context, *Scope) {
	if st := scopeStateFrom(ctx); st != nil && st.parent == a && !st.agg.disposed.Load() {
		return ctx, &Scope{state: st}
	}

	scoped := &Aggregator{
		resolver: a.resolver,
		handlers: newHandlerRegistry(),
		logger:   a.logger,
		metrics:  a.metrics,
		spans:    a.spans,
	}
	st := &scopeState{agg: scoped, parent: a}
	return context.WithValue(ctx, scopeKey{}, st), &Scope{state: st, outermost: true}
}

// ScopeFrom returns the live scoped aggregator carried by ctx.
func ScopeFrom(ctx context.Context) (*Aggregator, bool) {
	st := scopeStateFrom(ctx)
	if st == nil || st.agg.disposed.Load() {
		return nil, false
	}
	return st.agg, true
}

// Context attaches the scope to ctx, for publishing from code that did not
// receive the context returned by DefineScope.
func (s *Scope) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, s.state)
}

// Aggregator returns the scoped aggregator.
func (s *Scope) Aggregator() *Aggregator {
	return s.state.agg
}

// Outermost reports whether closing s disposes the scoped aggregator.
func (s *Scope) Outermost() bool {
	return s.outermost
}

// Publish dispatches ev to the scoped handlers and then to the parent aggregator.
func (s *Scope) Publish(ctx context.Context, ev Event) error {
	if s.isClosed() {
		return ErrScopeClosed
	}
	return s.state.parent.Publish(s.Context(ctx), ev)
}

// Close removes every handler subscribed through s and cancels their
// deliveries still queued on open units of work. Closing the outermost
// handle also disposes the scoped aggregator, so ScopeFrom no longer finds it.
// A second Close returns ErrScopeClosed.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrScopeClosed
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if s.outermost {
		s.state.agg.disposed.Store(true)
		s.state.agg.handlers.clear()
	}
	observability.LogScopeClosed(s.state.agg.logger, len(unsubs), s.outermost)
	return nil
}

func (s *Scope) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scope) owner() *Aggregator {
	return s.state.agg
}

func (s *Scope) subscribe(d *Descriptor) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrScopeClosed
	}
	unsub, err := s.state.agg.subscribe(d)
	if err != nil {
		return nil, err
	}
	s.unsubs = append(s.unsubs, unsub)
	return unsub, nil
}
