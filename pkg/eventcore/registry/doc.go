// Package registry provides a generic thread-safe registry for values indexed by key.
//
// Registry is built for read-mostly workloads: every write copies the current
// map under a mutex and publishes the copy through an atomic pointer, so
// readers never take a lock and always see a consistent snapshot.
//
// # Basic Usage
//
//	r := registry.New[string, int]()
//	r.Register("one", 1)
//	r.Register("two", 2)
//
//	value, ok := r.Get("one")
//	if ok {
//	    fmt.Println(value) // Output: 1
//	}
//
// # Read-Modify-Write
//
// Update applies a function to the current value while holding the writer lock.
// This is how the event package appends handler descriptors to a per-type list
// without ever mutating a slice that a dispatcher may be iterating:
//
//	handlers.Update(key, func(cur []*Descriptor, _ bool) ([]*Descriptor, bool) {
//	    next := make([]*Descriptor, len(cur), len(cur)+1)
//	    copy(next, cur)
//	    return append(next, d), true
//	})
//
// # Snapshots
//
// Snapshot and Range operate on the map that was current when they were called.
// Register, Update and Delete made during iteration publish a new map and do not
// affect the one being iterated.
package registry
