package registry

import (
	"sync"
	"sync/atomic"
)

// Registry is a thread-safe registry for values indexed by key.
// Reads load an immutable snapshot without locking; writes copy the
// current snapshot under a single mutex and publish the copy.
type Registry[K comparable, V any] struct {
	mu      sync.Mutex
	entries atomic.Pointer[map[K]V]
}

// New creates a new empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	r := &Registry[K, V]{}
	empty := make(map[K]V)
	r.entries.Store(&empty)
	return r
}

func (r *Registry[K, V]) load() map[K]V {
	return *r.entries.Load()
}

// mutate copies the current snapshot, applies fn and publishes the result.
// Callers must hold r.mu.
func (r *Registry[K, V]) mutate(fn func(next map[K]V)) {
	current := r.load()
	next := make(map[K]V, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	fn(next)
	r.entries.Store(&next)
}

// Register adds or updates a value in the registry.
func (r *Registry[K, V]) Register(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutate(func(next map[K]V) {
		next[key] = value
	})
}

// Update atomically replaces the value stored under key with the result of fn.
// fn receives the current value (zero value and false when absent). When fn
// returns keep=false the key is removed.
func (r *Registry[K, V]) Update(key K, fn func(current V, ok bool) (next V, keep bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutate(func(next map[K]V) {
		cur, ok := next[key]
		v, keep := fn(cur, ok)
		if keep {
			next[key] = v
		} else {
			delete(next, key)
		}
	})
}

// Get returns the value for a key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	v, ok := r.load()[key]
	return v, ok
}

// Has returns true if the key exists in the registry.
func (r *Registry[K, V]) Has(key K) bool {
	_, ok := r.load()[key]
	return ok
}

// Delete removes a key from the registry.
func (r *Registry[K, V]) Delete(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.load()[key]; !ok {
		return
	}
	r.mutate(func(next map[K]V) {
		delete(next, key)
	})
}

// Clear drops every entry by publishing an empty snapshot.
func (r *Registry[K, V]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	empty := make(map[K]V)
	r.entries.Store(&empty)
}

// Keys returns all keys in the registry.
// The order is not guaranteed.
func (r *Registry[K, V]) Keys() []K {
	snapshot := r.load()
	keys := make([]K, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of entries in the registry.
func (r *Registry[K, V]) Len() int {
	return len(r.load())
}

// Snapshot returns the current immutable view of the registry.
// The returned map must not be modified.
func (r *Registry[K, V]) Snapshot() map[K]V {
	return r.load()
}

// Range iterates over all entries in the current snapshot.
// If fn returns false, iteration stops. Mutations made during iteration
// do not affect the snapshot being iterated.
func (r *Registry[K, V]) Range(fn func(K, V) bool) {
	for k, v := range r.load() {
		if !fn(k, v) {
			return
		}
	}
}
