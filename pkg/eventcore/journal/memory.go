package journal

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory journal for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	closed  bool
}

// NewMemoryStore creates a new in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, entries ...Entry) error {
	if err := validate(entries); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	for _, e := range entries {
		e.Payload = storedPayload(e.Payload)
		m.entries = append(m.entries, e)
	}
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, unitID string) ([]Entry, error) {
	return m.filter(func(e Entry) bool { return e.UnitID == unitID })
}

// ListByType implements Store.
func (m *MemoryStore) ListByType(_ context.Context, eventType string) ([]Entry, error) {
	return m.filter(func(e Entry) bool { return e.EventType == eventType })
}

func (m *MemoryStore) filter(keep func(Entry) bool) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	out := []Entry{}
	for _, e := range m.entries {
		if keep(e) {
			e.Payload = clonePayload(e.Payload)
			out = append(out, e)
		}
	}
	return out, nil
}

// Count implements Store.
func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.entries), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.entries = nil
	return nil
}
