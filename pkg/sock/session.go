package sock

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/authsock/authsock/pkg/wire"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// echoPayload returns a $ping payload in a form NewEnvelope accepts,
// tolerating pings that carry no payload at all.
func echoPayload(env wire.Envelope) any {
	if len(env.Data) == 0 {
		return nil
	}
	return env.Data
}

// writeEnvelopes encodes envelopes as one physical text message and writes it
// under the endpoint's write lock, keeping the single-writer discipline so a
// batched flush and a control reply never interleave on the wire.
func writeEnvelopes(conn *websocket.Conn, mu *sync.Mutex, envelopes []wire.Envelope) error {
	data, err := wire.Encode(envelopes)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	return errors.Wrap(conn.WriteMessage(websocket.TextMessage, data), "write message failed")
}

// Session is the server-side endpoint of an authenticated connection,
// produced by Upgrader.Upgrade. Its lifetime is bound to the originating
// request's context: cancelling that context closes the transport exactly
// once, and closing the transport does not re-trigger cancellation.
type Session struct {
	id   string
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelCauseFunc

	pingInterval time.Duration
	pongTimeout  time.Duration

	writeMu   sync.Mutex
	batcher   *batcher
	hb        *heartbeat
	listeners listenerSet

	mu       sync.Mutex
	authCtx  any
	authSet  bool
	closedCh chan struct{}
}

// ID returns the unique identifier assigned to this session.
func (s *Session) ID() string {
	return s.id
}

// Context returns the context bound to the session's lifetime. It is done
// once the session is closed, with the close cause available via
// context.Cause.
func (s *Session) Context() context.Context {
	return s.ctx
}

// AuthContext returns the opaque value produced by the Authorizer during the
// handshake, or nil if no authorizer was configured. It is set at most once
// and never mutated afterward.
func (s *Session) AuthContext() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authCtx
}

func (s *Session) setAuthContext(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authSet {
		return
	}
	s.authCtx = v
	s.authSet = true
}

// On registers a listener for inbound envelopes of the given type. The
// synthetic local type $close is dispatched when the transport closes.
func (s *Session) On(typ string, fn Listener) {
	s.listeners.on(typ, fn)
}

// Send enqueues an envelope for the peer. Non-immediate sends are coalesced
// into a single transport write within the batch window; immediate sends
// flush the whole queue synchronously.
func (s *Session) Send(typ string, data any, immediate bool) error {
	env, err := wire.NewEnvelope(typ, data)
	if err != nil {
		return err
	}
	s.batcher.enqueue(env, immediate)
	return nil
}

// Close closes the session. Idempotent.
func (s *Session) Close() error {
	s.cancel(ErrSessionClosed)
	return nil
}

// Done is closed once the read loop has exited and the session is fully torn down.
func (s *Session) Done() <-chan struct{} {
	return s.closedCh
}

// start releases application traffic and begins the heartbeat and read loop.
// Called by the Upgrader only after the auth gate has passed.
func (s *Session) start() {
	s.hb = newHeartbeat(s.pingInterval, s.pongTimeout, s.sendHeartbeatPing, s.expireHeartbeat)
	s.batcher.setWritable(true)
	s.hb.start()
	go s.readLoop()
}

func (s *Session) readLoop() {
	defer s.teardown()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && s.ctx.Err() == nil {
				logger.WithField("session", s.id).WithError(err).Warn("session read failed")
			}
			return
		}
		s.handleInbound(data)
	}
}

func (s *Session) handleInbound(data []byte) {
	s.hb.reset()
	envelopes, errs := wire.Decode(data)
	for _, err := range errs {
		logger.WithField("session", s.id).WithError(err).Warn("dropped malformed line")
	}
	for _, env := range envelopes {
		proceed := s.listeners.dispatch(env)
		if !proceed || !wire.IsControl(env.Type) {
			continue
		}
		switch env.Type {
		case wire.TypePing:
			if err := s.Send(wire.TypePong, echoPayload(env), true); err != nil {
				logger.WithField("session", s.id).WithError(err).Warn("pong reply failed")
			}
		case wire.TypeError:
			logger.WithFields(logrus.Fields{
				"session": s.id,
				"payload": string(env.Data),
			}).Warn("peer reported error")
		}
	}
}

func (s *Session) teardown() {
	s.hb.stop()
	s.batcher.reset()
	s.cancel(ErrSessionClosed)
	s.listeners.dispatch(wire.Envelope{Type: wire.TypeClose})
	close(s.closedCh)
}

func (s *Session) writeBatch(envelopes []wire.Envelope) {
	if s.ctx.Err() != nil {
		return
	}
	if err := writeEnvelopes(s.conn, &s.writeMu, envelopes); err != nil {
		logger.WithField("session", s.id).WithError(err).Warn("batched write failed")
	}
}

func (s *Session) sendHeartbeatPing() {
	if err := s.Send(wire.TypePing, time.Now().UnixMilli(), true); err != nil {
		logger.WithField("session", s.id).WithError(err).Warn("ping send failed")
	}
}

// expireHeartbeat fires when no inbound traffic arrived within
// pingInterval+pongTimeout: notify the peer and force-close the transport.
func (s *Session) expireHeartbeat() {
	env, err := wire.NewEnvelope(wire.TypeError, ErrHeartbeatTimeout.Error())
	if err == nil {
		if werr := writeEnvelopes(s.conn, &s.writeMu, []wire.Envelope{env}); werr != nil {
			logger.WithField("session", s.id).WithError(werr).Debug("timeout notice write failed")
		}
	}
	s.cancel(ErrHeartbeatTimeout)
}
