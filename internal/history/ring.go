// Package history provides a ring buffer of recent envelopes so newly
// connected sessions can be brought up to date on attach.
package history

import (
	"sync"

	"github.com/authsock/authsock/pkg/wire"
)

// Ring is a thread-safe circular buffer keeping the most recent envelopes up
// to a fixed capacity. When full, the oldest entries are discarded.
type Ring struct {
	mu       sync.RWMutex
	entries  []wire.Envelope
	capacity int
}

// NewRing creates a Ring with the given capacity (minimum 1).
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		entries:  make([]wire.Envelope, 0, capacity),
		capacity: capacity,
	}
}

// Append records an envelope, discarding the oldest entry when full.
func (r *Ring) Append(env wire.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == r.capacity {
		copy(r.entries, r.entries[1:])
		r.entries[len(r.entries)-1] = env
		return
	}
	r.entries = append(r.entries, env)
}

// Snapshot returns a copy of the buffered envelopes, oldest first.
func (r *Ring) Snapshot() []wire.Envelope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return nil
	}
	out := make([]wire.Envelope, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of buffered envelopes.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
