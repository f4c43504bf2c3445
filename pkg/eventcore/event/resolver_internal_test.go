package event

import (
	"bytes"
	"log/slog"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCachePopulationPanicIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := NewResolver(WithCacheWorkers(0, 0), WithResolverLogger(logger))
	defer r.Close()

	var calls atomic.Int32
	r.compute = func(t reflect.Type, markers []reflect.Type) []reflect.Type {
		if calls.Add(1) > 1 {
			panic("population exploded")
		}
		return hierarchy(t, markers)
	}

	typ := reflect.TypeFor[Occurred]()
	got := r.SubscribableTypes(typ)

	assert.Equal(t, []reflect.Type{typ, reflect.TypeFor[Base]()}, got, "synchronous result is unaffected")
	assert.False(t, r.Cached(typ))
	assert.True(t, strings.Contains(buf.String(), "type cache population failed"))
	assert.True(t, strings.Contains(buf.String(), "population exploded"))

	// The pending mark is cleared so a later miss retries.
	r.compute = hierarchy
	r.SubscribableTypes(typ)
	assert.True(t, r.Cached(typ))
}

func TestStalePopulationIsDiscarded(t *testing.T) {
	r := NewResolver(WithCacheWorkers(0, 0))
	defer r.Close()

	typ := reflect.TypeFor[Occurred]()
	r.populate(populateJob{t: typ, gen: r.gen.Load() + 1})
	assert.False(t, r.Cached(typ))

	r.populate(populateJob{t: typ, gen: r.gen.Load()})
	assert.True(t, r.Cached(typ))
}

func TestKeyOf(t *testing.T) {
	assert.Equal(t, reflect.TypeFor[Occurred](), keyOf(reflect.TypeFor[*Occurred]()))
	assert.Equal(t, reflect.TypeFor[Event](), keyOf(reflect.TypeFor[Event]()))
	assert.Equal(t, "event.Occurred", typeName(reflect.TypeFor[*Occurred]()))
}
