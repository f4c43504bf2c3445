package event

import "sync"

// pendingSet tracks the stage callbacks one descriptor has attached to
// units of work, so removing the descriptor can cancel those still queued.
type pendingSet struct {
	mu      sync.Mutex
	entries map[*pendingEntry]struct{}
	removed bool
}

type pendingEntry struct {
	cancel func()
}

func newPendingSet() *pendingSet {
	return &pendingSet{entries: make(map[*pendingEntry]struct{})}
}

// reserve records an entry before its callback is attached. It returns
// nil once the set has been cancelled.
func (p *pendingSet) reserve() *pendingEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removed {
		return nil
	}
	e := &pendingEntry{}
	p.entries[e] = struct{}{}
	return e
}

// bind stores the cancel for a reserved entry. If the set was cancelled
// between reserve and bind, cancel runs immediately.
func (p *pendingSet) bind(e *pendingEntry, cancel func()) {
	p.mu.Lock()
	if p.removed {
		p.mu.Unlock()
		cancel()
		return
	}
	if _, ok := p.entries[e]; ok {
		e.cancel = cancel
	}
	p.mu.Unlock()
}

// done forgets e after its callback ran or could not be attached.
func (p *pendingSet) done(e *pendingEntry) {
	p.mu.Lock()
	delete(p.entries, e)
	p.mu.Unlock()
}

// cancelAll cancels every bound entry and refuses further reservations.
func (p *pendingSet) cancelAll() {
	p.mu.Lock()
	if p.removed {
		p.mu.Unlock()
		return
	}
	p.removed = true
	entries := p.entries
	p.entries = nil
	p.mu.Unlock()

	for e := range entries {
		if e.cancel != nil {
			e.cancel()
		}
	}
}

func (p *pendingSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
