package sock

import (
	"sync"

	"github.com/authsock/authsock/pkg/wire"
)

// Event wraps an inbound envelope handed to listeners. Listeners for control
// messages run before the internal protocol handling and may call Cancel to
// suppress it; the liveness watchdog reset is not cancelable.
type Event struct {
	Envelope wire.Envelope
	canceled bool
}

// Cancel suppresses the internal handling of a control message.
// It has no effect on application messages.
func (e *Event) Cancel() {
	e.canceled = true
}

// Canceled reports whether a listener canceled internal handling.
func (e *Event) Canceled() bool {
	return e.canceled
}

// Listener receives inbound envelopes of a registered type.
type Listener func(*Event)

// listenerSet is an explicit per-endpoint observer list keyed by envelope type.
type listenerSet struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

func (s *listenerSet) on(typ string, fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[string][]Listener)
	}
	s.listeners[typ] = append(s.listeners[typ], fn)
}

// dispatch invokes the listeners registered for the envelope's type and
// reports whether internal handling may proceed.
func (s *listenerSet) dispatch(env wire.Envelope) bool {
	s.mu.RLock()
	fns := s.listeners[env.Type]
	s.mu.RUnlock()
	if len(fns) == 0 {
		return true
	}
	ev := &Event{Envelope: env}
	for _, fn := range fns {
		fn(ev)
	}
	return !ev.canceled
}
