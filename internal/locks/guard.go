package locks

import "sync"

// Guard is an in-process single-flight gate keyed by string. The detector
// holds one guard entry per credential for the duration of a pass, so two
// concurrent passes can never diff against the same stale snapshot even when
// the distributed tick lock is disabled.
type Guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{active: make(map[string]struct{})}
}

// TryAcquire reserves key if no other holder has it. Returns false if the key
// is already held; the caller must skip the work rather than wait.
func (g *Guard) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.active[key]; held {
		return false
	}
	g.active[key] = struct{}{}
	return true
}

// Release frees key for the next holder. Releasing a key that is not held is
// a no-op.
func (g *Guard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}

// ActiveCount returns the number of keys currently held.
func (g *Guard) ActiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}
