package event

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/eventcore/pkg/eventcore/observability"
)

// Drop reasons reported for deferred deliveries that could not be scheduled.
const (
	reasonNoUnit     = "no unit of work in context"
	reasonStageFired = "lifecycle stage already fired"
	labelNoUnit      = "no_unit"
	labelStageFired  = "stage_fired"
)

// Deferred delivers each matching event individually when a unit-of-work
// stage fires, in arrival order.
type Deferred[T Event] struct {
	b     *Builder[T]
	stage Stage
}

// DeferUntil postpones delivery until stage fires on the unit of work
// carried by the publishing context.
func (b *Builder[T]) DeferUntil(stage Stage) *Deferred[T] {
	return &Deferred[T]{b: b, stage: stage}
}

// Subscribe registers fn for deferred delivery.
//
// Events published without a unit of work in ctx, or after the stage has
// fired, are dropped with a warning. Publish does not fail for them.
// Unsubscribing cancels deliveries still queued on open units.
func (d *Deferred[T]) Subscribe(fn func(context.Context, T) error) (func(), error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, ErrNilHandler
	}
	agg := d.b.target.owner()
	stage := d.stage
	pending := newPendingSet()

	s := d.b.subscription()
	s.release = pending.cancelAll
	return register(d.b.target, s, func(ctx context.Context, ev T) error {
		unit, ok := UnitFrom(ctx)
		if !ok {
			agg.dropped(ctx, ev, stage, reasonNoUnit, labelNoUnit)
			return nil
		}
		entry := pending.reserve()
		if entry == nil {
			return nil
		}
		cancel, err := unit.On(stage, func(stageCtx context.Context) error {
			pending.done(entry)
			return fn(stageCtx, ev)
		})
		if err != nil {
			pending.done(entry)
			if errors.Is(err, ErrStageFired) {
				agg.dropped(ctx, ev, stage, reasonStageFired, labelStageFired)
				return nil
			}
			return err
		}
		pending.bind(entry, cancel)
		return nil
	})
}

func (d *Deferred[T]) validate() error {
	if d.b.err != nil {
		return d.b.err
	}
	if isNilTarget(d.b.target) {
		return ErrNilTarget
	}
	if !d.stage.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidStage, int(d.stage))
	}
	return nil
}

// Batched accumulates matching events per unit of work and delivers them
// as one Batch when a stage fires.
type Batched[T Event] struct {
	b     *Builder[T]
	stage Stage
}

// BatchUntil accumulates events until stage fires on the unit of work
// carried by the publishing context. The Batch goes straight to the
// subscriber; it is never published, so Batch[T] handlers elsewhere do not
// receive it.
func (b *Builder[T]) BatchUntil(stage Stage) *Batched[T] {
	return &Batched[T]{b: b, stage: stage}
}

// batchKey identifies one subscriber's accumulator in unit Storage.
type batchKey struct {
	id uint64
}

type accumulator[T Event] struct {
	events []T
}

var batchSeq atomic.Uint64

// Subscribe registers fn for batched delivery.
//
// The first matching event in a unit attaches one stage callback; later
// events append to the same batch. When the stage fires fn runs exactly
// once with every event in arrival order and the accumulator is released.
// A unit with no matching events never invokes fn. Events arriving after
// the flush, or without a unit, are dropped with a warning.
//
// Unsubscribing, or closing the scope the subscription belongs to, cancels
// flushes still queued on open units and releases their accumulators.
func (bt *Batched[T]) Subscribe(fn func(context.Context, Batch[T]) error) (func(), error) {
	if err := (&Deferred[T]{b: bt.b, stage: bt.stage}).validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, ErrNilHandler
	}
	agg := bt.b.target.owner()
	stage := bt.stage
	key := batchKey{id: batchSeq.Add(1)}
	name := typeName(reflect.TypeFor[T]())
	pending := newPendingSet()

	// mu makes get-or-attach and append atomic across concurrent publishes.
	var mu sync.Mutex

	flush := func(unit Unit, entry *pendingEntry) func(context.Context) error {
		return func(ctx context.Context) error {
			pending.done(entry)
			mu.Lock()
			var events []T
			if acc, ok := unit.Get(key); ok {
				events = acc.(*accumulator[T]).events
			}
			unit.Release(key)
			mu.Unlock()

			if len(events) == 0 {
				return nil
			}
			agg.metrics.RecordBatch(ctx, name, len(events))
			observability.LogBatchFlushed(agg.logger, name, stage.String(), len(events))
			return fn(ctx, Batch[T]{Events: events})
		}
	}

	s := bt.b.subscription()
	s.release = pending.cancelAll
	return register(bt.b.target, s, func(ctx context.Context, ev T) error {
		unit, ok := UnitFrom(ctx)
		if !ok {
			agg.dropped(ctx, ev, stage, reasonNoUnit, labelNoUnit)
			return nil
		}

		mu.Lock()
		defer mu.Unlock()

		if acc, ok := unit.Get(key); ok {
			a := acc.(*accumulator[T])
			a.events = append(a.events, ev)
			return nil
		}
		entry := pending.reserve()
		if entry == nil {
			return nil
		}
		cancel, err := unit.On(stage, flush(unit, entry))
		if err != nil {
			pending.done(entry)
			if errors.Is(err, ErrStageFired) {
				agg.dropped(ctx, ev, stage, reasonStageFired, labelStageFired)
				return nil
			}
			return err
		}
		unit.Set(key, &accumulator[T]{events: []T{ev}})
		pending.bind(entry, func() {
			cancel()
			unit.Release(key)
		})
		return nil
	})
}
