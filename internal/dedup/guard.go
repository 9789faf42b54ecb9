// Package dedup provides the in-process dispatch guard: a claim set that
// ensures a message id is dispatched by at most one goroutine at a time
// within this process. It is a fast path in front of the store-level
// conditional claim, not a cross-process lock; it resets on restart.
package dedup

import "sync"

// Guard is a concurrent claim set keyed by message id.
// The zero value is not usable; construct with NewGuard.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{inFlight: make(map[string]struct{})}
}

// Claim atomically records id as in flight. It returns true when the claim
// succeeded (id was not already present).
func (g *Guard) Claim(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.inFlight[id]; exists {
		return false
	}
	g.inFlight[id] = struct{}{}
	return true
}

// Release removes id from the set unconditionally. Callers must release on
// every exit path after a successful Claim.
func (g *Guard) Release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, id)
}

// Len reports the number of ids currently in flight.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}
