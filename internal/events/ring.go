// Package events keeps a bounded in-memory ring of the most recent raw
// webhook events for operational inspection. The buffer is process-local and
// resets on restart; it records every event regardless of whether downstream
// processing succeeded.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event is one raw webhook delivery as received from the transport.
type Event struct {
	Event      string          `json:"event"`
	Session    string          `json:"session"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Ring is a fixed-capacity buffer of recent events plus a running total.
// It is safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	buf   []Event
	next  int
	count int
	total uint64
}

// NewRing returns a Ring holding at most capacity events. Capacities below
// one are coerced to one.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Event, capacity)}
}

// Add records an event, evicting the oldest when full.
func (r *Ring) Add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.total++
}

// Recent returns up to limit buffered events, newest first. A limit <= 0 or
// beyond the buffered count returns everything buffered.
func (r *Ring) Recent(limit int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Total reports how many events were ever added, including evicted ones.
func (r *Ring) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
