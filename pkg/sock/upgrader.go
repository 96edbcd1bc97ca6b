package sock

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/authsock/authsock/pkg/wire"
)

// Defaults applied when the corresponding Upgrader fields are zero.
const (
	DefaultAuthTimeout  = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
	DefaultPongTimeout  = 10 * time.Second
)

// Authorizer validates the payload of an inbound $auth envelope and returns
// an opaque context attached to the session on success. It must be safe for
// concurrent invocation by multiple connections.
type Authorizer func(payload json.RawMessage) (any, error)

// Upgrader upgrades HTTP connections to authenticated sessions.
type Upgrader struct {
	// Upgrader must not be nil.
	Upgrader *websocket.Upgrader

	PingInterval time.Duration
	PongTimeout  time.Duration

	// MinBatchWindow is the debounce delay for coalescing non-immediate
	// sends; MaxBatchWindow caps it. Zero values use the 20ms default.
	MinBatchWindow time.Duration
	MaxBatchWindow time.Duration

	// Authorizer, when set, gates the session: Upgrade blocks until the
	// client submits credentials or AuthTimeout elapses.
	Authorizer  Authorizer
	AuthTimeout time.Duration

	// OnSession, when set, runs after the handshake completes and before
	// the read loop starts, so callers can register listeners without
	// racing inbound traffic.
	OnSession func(*Session)
}

// Upgrade upgrades an HTTP connection to an authenticated session. If an
// Authorizer is configured, it sends $auth_ready, waits synchronously for the
// client's $auth envelope, and only returns the session once the authorizer
// accepts; on authorizer error, timeout, or premature close the connection is
// closed and the error returned, so the caller never observes a
// half-authenticated session. The session's lifetime is linked to the request
// context.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request, respHeader http.Header) (*Session, error) {
	conn, err := u.Upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		return nil, errors.Wrap(err, "websocket upgrade failed")
	}

	s := &Session{
		id:           uuid.NewString(),
		conn:         conn,
		pingInterval: defaultDuration(u.PingInterval, DefaultPingInterval),
		pongTimeout:  defaultDuration(u.PongTimeout, DefaultPongTimeout),
		closedCh:     make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancelCause(r.Context())
	context.AfterFunc(s.ctx, func() {
		conn.Close()
	})
	s.batcher = newBatcher(batchWindow(u.MinBatchWindow, u.MaxBatchWindow), s.writeBatch)

	if u.Authorizer != nil {
		payload, err := s.awaitAuth(defaultDuration(u.AuthTimeout, DefaultAuthTimeout))
		if err != nil {
			s.cancel(err)
			return nil, err
		}
		authCtx, err := u.Authorizer(payload)
		if err != nil {
			err = errors.Wrap(err, "authorize failed")
			s.cancel(err)
			return nil, err
		}
		s.setAuthContext(authCtx)
	}

	if err := s.sendReady(); err != nil {
		s.cancel(err)
		return nil, err
	}
	if u.OnSession != nil {
		u.OnSession(s)
	}
	s.start()
	return s, nil
}

// awaitAuth sends $auth_ready and blocks until the client submits an $auth
// envelope or the timeout elapses. Non-auth lines received meanwhile are
// ignored; the handshake gate releases no traffic.
func (s *Session) awaitAuth(timeout time.Duration) (json.RawMessage, error) {
	ready, err := wire.NewEnvelope(wire.TypeAuthReady, nil)
	if err != nil {
		return nil, err
	}
	if err := writeEnvelopes(s.conn, &s.writeMu, []wire.Envelope{ready}); err != nil {
		return nil, err
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, errors.Wrap(err, "set auth deadline failed")
	}
	defer s.conn.SetReadDeadline(time.Time{}) // nolint: errcheck // cleared on the success path only

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return nil, ErrAuthTimeout
			}
			return nil, errors.Wrap(err, "read auth message failed")
		}
		envelopes, errs := wire.Decode(data)
		for _, derr := range errs {
			logger.WithField("session", s.id).WithError(derr).Warn("dropped malformed line")
		}
		for _, env := range envelopes {
			if env.Type == wire.TypeAuth {
				return env.Data, nil
			}
		}
	}
}

// sendReady completes the handshake by announcing the heartbeat parameters
// the client must adopt.
func (s *Session) sendReady() error {
	payload := wire.ReadyPayload{
		PingInterval: s.pingInterval.Milliseconds(),
		PongTimeout:  s.pongTimeout.Milliseconds(),
	}
	env, err := wire.NewEnvelope(wire.TypeReady, payload)
	if err != nil {
		return err
	}
	return writeEnvelopes(s.conn, &s.writeMu, []wire.Envelope{env})
}

func defaultDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// batchWindow derives the debounce delay from the configured bounds.
func batchWindow(min, max time.Duration) time.Duration {
	window := min
	if window <= 0 {
		window = defaultBatchWindow
	}
	if max > 0 && window > max {
		window = max
	}
	return window
}
