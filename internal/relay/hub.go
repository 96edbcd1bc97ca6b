// Package relay implements the demo broadcast service: every application
// envelope received from one session is forwarded to all other connected
// sessions, and recent traffic is replayed to newcomers.
package relay

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/authsock/authsock/internal/history"
	"github.com/authsock/authsock/pkg/sock"
	"github.com/authsock/authsock/pkg/wire"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Hub tracks connected sessions and fans application envelopes out to them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*sock.Session
	recent   *history.Ring
}

// NewHub creates a Hub retaining historySize recent envelopes for replay.
func NewHub(historySize int) *Hub {
	return &Hub{
		sessions: make(map[string]*sock.Session),
		recent:   history.NewRing(historySize),
	}
}

// Attach wires a freshly upgraded session into the hub. It must run before
// the session's read loop starts (the Upgrader's OnSession hook), so no
// inbound envelope races the registration.
func (h *Hub) Attach(sess *sock.Session) {
	h.mu.Lock()
	h.sessions[sess.ID()] = sess
	h.mu.Unlock()

	sess.On("chat", func(ev *sock.Event) {
		h.broadcast(sess.ID(), ev.Envelope)
	})
	sess.On(wire.TypeClose, func(*sock.Event) {
		h.detach(sess.ID())
	})

	for _, env := range h.recent.Snapshot() {
		if err := sess.Send(env.Type, env.Data, false); err != nil {
			logger.WithField("session", sess.ID()).WithError(err).Warn("history replay failed")
		}
	}

	logger.WithFields(logrus.Fields{
		"session": sess.ID(),
		"subject": sess.AuthContext(),
		"total":   h.Count(),
	}).Info("session attached")
}

func (h *Hub) detach(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	remaining := len(h.sessions)
	h.mu.Unlock()
	logger.WithFields(logrus.Fields{
		"session": id,
		"total":   remaining,
	}).Info("session detached")
}

// broadcast forwards an envelope to every session except its origin.
func (h *Hub) broadcast(from string, env wire.Envelope) {
	h.recent.Append(env)

	h.mu.RLock()
	targets := make([]*sock.Session, 0, len(h.sessions))
	for id, sess := range h.sessions {
		if id == from {
			continue
		}
		targets = append(targets, sess)
	}
	h.mu.RUnlock()

	for _, sess := range targets {
		if err := sess.Send(env.Type, env.Data, false); err != nil {
			logger.WithField("session", sess.ID()).WithError(err).Warn("broadcast send failed")
		}
	}
}

// Count returns the number of attached sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close closes every attached session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*sock.Session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		sessions = append(sessions, sess)
	}
	h.sessions = make(map[string]*sock.Session)
	h.mu.Unlock()

	for _, sess := range sessions {
		if err := sess.Close(); err != nil {
			logger.WithField("session", sess.ID()).WithError(err).Warn("close failed")
		}
	}
}
