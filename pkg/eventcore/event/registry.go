package event

import (
	"context"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventcore/pkg/eventcore/registry"
)

// Descriptor is one registered handler. It is immutable once registered.
type Descriptor struct {
	ID       string
	Type     reflect.Type // subscription key
	Priority int

	seq       uint64
	predicate func(Event) bool
	invoke    func(context.Context, Event) error
	release   func() // detaches pending stage callbacks; may be nil
}

// Seq returns the registration sequence used to break priority ties.
func (d *Descriptor) Seq() uint64 {
	return d.seq
}

func (d *Descriptor) detach() {
	if d.release != nil {
		d.release()
	}
}

func (d *Descriptor) accepts(ev Event) bool {
	return d.predicate == nil || d.predicate(ev)
}

// handlerRegistry maps subscription keys to descriptor lists.
// Lists are never modified in place: every add or remove publishes a new
// slice, so a dispatch iterating an older list is unaffected.
type handlerRegistry struct {
	entries *registry.Registry[reflect.Type, []*Descriptor]
	seq     atomic.Uint64
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{
		entries: registry.New[reflect.Type, []*Descriptor](),
	}
}

// add registers d and returns an idempotent func that removes it.
func (r *handlerRegistry) add(d *Descriptor) func() {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.seq = r.seq.Add(1)

	r.entries.Update(d.Type, func(cur []*Descriptor, _ bool) ([]*Descriptor, bool) {
		next := make([]*Descriptor, len(cur), len(cur)+1)
		copy(next, cur)
		return append(next, d), true
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			r.remove(d)
			d.detach()
		})
	}
}

func (r *handlerRegistry) remove(d *Descriptor) {
	r.entries.Update(d.Type, func(cur []*Descriptor, ok bool) ([]*Descriptor, bool) {
		if !ok {
			return nil, false
		}
		next := make([]*Descriptor, 0, len(cur))
		for _, existing := range cur {
			if existing != d {
				next = append(next, existing)
			}
		}
		return next, len(next) > 0
	})
}

// match unions the descriptors registered under types, read from a single
// snapshot, ordered by priority descending then registration order.
func (r *handlerRegistry) match(types []reflect.Type) []*Descriptor {
	snapshot := r.entries.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}

	var matched []*Descriptor
	for _, t := range types {
		matched = append(matched, snapshot[t]...)
	}
	if len(matched) > 1 {
		slices.SortStableFunc(matched, byPriority)
	}
	return matched
}

func byPriority(a, b *Descriptor) int {
	if a.Priority != b.Priority {
		if a.Priority > b.Priority {
			return -1
		}
		return 1
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}

func (r *handlerRegistry) len() int {
	n := 0
	r.entries.Range(func(_ reflect.Type, ds []*Descriptor) bool {
		n += len(ds)
		return true
	})
	return n
}

func (r *handlerRegistry) clear() {
	snapshot := r.entries.Snapshot()
	r.entries.Clear()
	for _, ds := range snapshot {
		for _, d := range ds {
			d.detach()
		}
	}
}
