package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tick struct{ Base }

// stubUnit records attached callbacks and storage without firing anything
// until fire is called.
type stubUnit struct {
	callbacks []*stubCallback
	storage   map[any]any
}

type stubCallback struct {
	fn        func(context.Context) error
	cancelled bool
}

func newStubUnit() *stubUnit {
	return &stubUnit{storage: make(map[any]any)}
}

func (u *stubUnit) On(_ Stage, fn func(context.Context) error) (func(), error) {
	cb := &stubCallback{fn: fn}
	u.callbacks = append(u.callbacks, cb)
	return func() { cb.cancelled = true }, nil
}

func (u *stubUnit) Get(key any) (any, bool) {
	v, ok := u.storage[key]
	return v, ok
}

func (u *stubUnit) Set(key, value any) { u.storage[key] = value }
func (u *stubUnit) Release(key any)    { delete(u.storage, key) }

func (u *stubUnit) fire(ctx context.Context) error {
	for _, cb := range u.callbacks {
		if cb.cancelled {
			continue
		}
		if err := cb.fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func TestPendingSet(t *testing.T) {
	t.Run("done forgets entry", func(t *testing.T) {
		p := newPendingSet()
		e := p.reserve()
		require.NotNil(t, e)
		p.bind(e, func() { t.Fatal("cancel after done") })
		assert.Equal(t, 1, p.len())

		p.done(e)
		assert.Equal(t, 0, p.len())
		p.cancelAll()
	})

	t.Run("cancelAll cancels bound entries once", func(t *testing.T) {
		p := newPendingSet()
		calls := 0
		for range 3 {
			p.bind(p.reserve(), func() { calls++ })
		}

		p.cancelAll()
		p.cancelAll()
		assert.Equal(t, 3, calls)
		assert.Nil(t, p.reserve())
	})

	t.Run("bind after cancelAll cancels immediately", func(t *testing.T) {
		p := newPendingSet()
		e := p.reserve()
		p.cancelAll()

		cancelled := false
		p.bind(e, func() { cancelled = true })
		assert.True(t, cancelled)
	})
}

func TestUnsubscribeReleasesBatchAccumulator(t *testing.T) {
	agg := NewAggregator()
	defer agg.Close()
	calls := 0

	unsub, err := On[tick](agg).
		BatchUntil(Finished).
		Subscribe(func(context.Context, Batch[tick]) error {
			calls++
			return nil
		})
	require.NoError(t, err)

	u := newStubUnit()
	ctx := WithUnit(context.Background(), u)
	require.NoError(t, agg.PublishAll(ctx, tick{}, tick{}))
	require.Len(t, u.storage, 1)
	require.Len(t, u.callbacks, 1)

	unsub()
	assert.Empty(t, u.storage)
	assert.True(t, u.callbacks[0].cancelled)

	require.NoError(t, agg.Publish(ctx, tick{}))
	assert.Empty(t, u.storage, "removed subscription no longer accumulates")

	require.NoError(t, u.fire(ctx))
	assert.Equal(t, 0, calls)
}

func TestFiredDeferredCallbackLeavesNothingPending(t *testing.T) {
	agg := NewAggregator()
	defer agg.Close()
	calls := 0

	unsub, err := On[tick](agg).
		DeferUntil(AfterCompletion).
		Subscribe(func(context.Context, tick) error {
			calls++
			return nil
		})
	require.NoError(t, err)

	u := newStubUnit()
	ctx := WithUnit(context.Background(), u)
	require.NoError(t, agg.PublishAll(ctx, tick{}, tick{}))
	require.NoError(t, u.fire(ctx))
	assert.Equal(t, 2, calls)

	unsub()
	for _, cb := range u.callbacks {
		assert.False(t, cb.cancelled, "fired callbacks are not tracked")
	}
}
