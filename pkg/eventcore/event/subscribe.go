package event

import (
	"context"
	"reflect"
)

// SubscribeOption configures a direct subscription.
type SubscribeOption func(*subscription)

type subscription struct {
	priority   int
	predicates []func(Event) bool
	err        error
	release    func()
}

// WithPriority sets the delivery priority. Higher runs first; the default is 0.
func WithPriority(p int) SubscribeOption {
	return func(s *subscription) {
		s.priority = p
	}
}

// WithPredicate adds a filter; the handler is skipped for events it rejects.
// Multiple predicates must all accept.
func WithPredicate[T Event](pred func(T) bool) SubscribeOption {
	return func(s *subscription) {
		if pred == nil {
			s.err = ErrNilPredicate
			return
		}
		s.predicates = append(s.predicates, typedPredicate(pred))
	}
}

// Subscribe registers fn for every published event whose subscribable types
// include T. It returns a func that removes the subscription; calling it more
// than once, or from inside a handler, is safe.
//
// T may be a concrete event type (value or pointer) or an interface embedding
// Event. Subscribing to an interface registers it as a marker.
func Subscribe[T Event](target Target, fn func(context.Context, T) error, opts ...SubscribeOption) (func(), error) {
	s := &subscription{}
	for _, opt := range opts {
		opt(s)
	}
	if s.err != nil {
		return nil, s.err
	}
	return register(target, s, fn)
}

func register[T Event](target Target, s *subscription, fn func(context.Context, T) error) (func(), error) {
	if isNilTarget(target) {
		return nil, ErrNilTarget
	}
	if fn == nil {
		return nil, ErrNilHandler
	}

	d := &Descriptor{
		Type:      keyOf(reflect.TypeFor[T]()),
		Priority:  s.priority,
		predicate: combine(s.predicates),
		release:   s.release,
		invoke: func(ctx context.Context, ev Event) error {
			v, ok := As[T](ev)
			if !ok {
				return nil
			}
			return fn(ctx, v)
		},
	}
	return target.subscribe(d)
}

// Builder composes filters and delivery options before subscribing.
// Each method returns a new Builder; a Builder can be reused as a template.
type Builder[T Event] struct {
	target     Target
	priority   int
	predicates []func(Event) bool
	err        error
}

// On starts an unfiltered subscription builder for T.
func On[T Event](target Target) *Builder[T] {
	return &Builder[T]{target: target}
}

// Where starts a subscription builder for T filtered by pred.
func Where[T Event](target Target, pred func(T) bool) *Builder[T] {
	return On[T](target).Where(pred)
}

func (b *Builder[T]) clone() *Builder[T] {
	c := *b
	c.predicates = append([]func(Event) bool(nil), b.predicates...)
	return &c
}

// Where adds a filter. All filters must accept for the handler to run.
func (b *Builder[T]) Where(pred func(T) bool) *Builder[T] {
	c := b.clone()
	if pred == nil {
		c.err = ErrNilPredicate
		return c
	}
	c.predicates = append(c.predicates, typedPredicate(pred))
	return c
}

// Priority sets the delivery priority.
func (b *Builder[T]) Priority(p int) *Builder[T] {
	c := b.clone()
	c.priority = p
	return c
}

// Subscribe registers fn for immediate delivery.
func (b *Builder[T]) Subscribe(fn func(context.Context, T) error) (func(), error) {
	if b.err != nil {
		return nil, b.err
	}
	return register(b.target, b.subscription(), fn)
}

func (b *Builder[T]) subscription() *subscription {
	return &subscription{priority: b.priority, predicates: b.predicates}
}

// As converts ev to T. Concrete targets may be reached through the
// embedding chain, so an OrderPlaced can be delivered as its embedded
// Occurred or Base.
func As[T Event](ev Event) (T, bool) {
	if v, ok := ev.(T); ok {
		return v, true
	}
	var zero T
	if isNil(ev) {
		return zero, false
	}
	target := reflect.TypeFor[T]()
	if target.Kind() == reflect.Interface {
		return zero, false
	}
	pv, ok := project(reflect.ValueOf(ev), target)
	if !ok {
		return zero, false
	}
	out, ok := pv.Interface().(T)
	return out, ok
}

// project walks the exported embedded event fields of v looking for target.
func project(v reflect.Value, target reflect.Type) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer {
		if v.Type() == target {
			return v, true
		}
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}

	switch {
	case v.Type() == target:
		return v, true
	case target.Kind() == reflect.Pointer && v.Type() == target.Elem():
		if v.CanAddr() {
			return v.Addr(), true
		}
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		return p, true
	}

	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	t := v.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.Anonymous || !f.IsExported() {
			continue
		}
		if ft := indirect(f.Type); ft.Kind() != reflect.Struct || !implementsEvent(ft) {
			continue
		}
		if pv, ok := project(v.Field(i), target); ok {
			return pv, true
		}
	}
	return reflect.Value{}, false
}

func typedPredicate[T Event](pred func(T) bool) func(Event) bool {
	return func(ev Event) bool {
		v, ok := As[T](ev)
		return ok && pred(v)
	}
}

func combine(preds []func(Event) bool) func(Event) bool {
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	}
	return func(ev Event) bool {
		for _, p := range preds {
			if !p(ev) {
				return false
			}
		}
		return true
	}
}

func isNilTarget(t Target) bool {
	if t == nil {
		return true
	}
	v := reflect.ValueOf(t)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
