package sock

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/authsock/authsock/internal/backoff"
	"github.com/authsock/authsock/pkg/wire"
)

// readyGate is the per-incarnation handshake future. It settles exactly once,
// either with nil when $ready arrives or with an error on auth timeout or
// premature close during the handshake.
type readyGate struct {
	ch   chan struct{}
	once sync.Once
	err  error
}

func newReadyGate() *readyGate {
	return &readyGate{ch: make(chan struct{})}
}

func (g *readyGate) settle(err error) {
	g.once.Do(func() {
		g.err = err
		close(g.ch)
	})
}

func (g *readyGate) settled() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

func (g *readyGate) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.ch:
		return g.err
	}
}

// Client is the dialing endpoint. Open establishes a connection and drives
// the auth handshake; when the transport drops while the client is still
// desired-active, a new incarnation is scheduled with exponential backoff.
type Client struct {
	url         string
	dialer      *websocket.Dialer
	header      http.Header
	creds       CredentialSource
	authTimeout time.Duration
	batchWindow time.Duration

	listeners listenerSet
	batcher   *batcher
	writeMu   sync.Mutex
	redial    *backoff.Backoff

	mu            sync.Mutex
	state         State
	desiredActive bool
	epoch         uint64
	conn          *websocket.Conn
	hb            *heartbeat
	authTimer     *time.Timer
	redialTimer   *time.Timer
	ready         *readyGate
	pingInterval  time.Duration
	pongTimeout   time.Duration
}

// ClientCfg configures a Client.
type ClientCfg func(*Client) error

// WithDialer sets the websocket dialer, including any sub-protocol list.
func WithDialer(d *websocket.Dialer) ClientCfg {
	return func(c *Client) error {
		c.dialer = d
		return nil
	}
}

// WithSubprotocols sets the sub-protocols offered during the handshake.
func WithSubprotocols(subprotocols ...string) ClientCfg {
	return func(c *Client) error {
		c.dialer.Subprotocols = subprotocols
		return nil
	}
}

// WithRequestHeader sets extra headers sent with the upgrade request.
func WithRequestHeader(h http.Header) ClientCfg {
	return func(c *Client) error {
		c.header = h
		return nil
	}
}

// WithCredentials sets the source queried when the server requests credentials.
func WithCredentials(src CredentialSource) ClientCfg {
	return func(c *Client) error {
		c.creds = src
		return nil
	}
}

// WithStaticCredentials submits the same credential value on every handshake.
func WithStaticCredentials(v any) ClientCfg {
	return WithCredentials(StaticCredential{Value: v})
}

// WithAuthTimeout bounds how long a handshake may stay pending.
func WithAuthTimeout(d time.Duration) ClientCfg {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("auth timeout must be positive")
		}
		c.authTimeout = d
		return nil
	}
}

// WithBatchWindow sets the debounce delay for non-immediate sends.
func WithBatchWindow(d time.Duration) ClientCfg {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("batch window must be positive")
		}
		c.batchWindow = d
		return nil
	}
}

// NewClient creates a client for the given websocket URL. The client does
// not connect until Open is called.
func NewClient(url string, cfgs ...ClientCfg) (*Client, error) {
	c := &Client{
		url:         url,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		authTimeout: DefaultAuthTimeout,
		batchWindow: defaultBatchWindow,
		redial:      backoff.New(),
		ready:       newReadyGate(),
	}
	for _, cfg := range cfgs {
		if err := cfg(c); err != nil {
			return nil, errors.Wrap(err, "apply Client cfg failed")
		}
	}
	c.batcher = newBatcher(c.batchWindow, c.writeBatch)
	return c, nil
}

// State returns the lifecycle state of the current incarnation.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// On registers a listener for inbound envelopes of the given type. The
// synthetic local type $close is dispatched whenever the transport closes;
// it is never received from the wire.
func (c *Client) On(typ string, fn Listener) {
	c.listeners.on(typ, fn)
}

// Open marks the client desired-active and establishes a connection. Calling
// Open while a connection attempt or session is already in flight is a no-op.
func (c *Client) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.desiredActive = true
	if c.state != StateClosed {
		return
	}
	c.beginIncarnationLocked()
}

// Close marks the client not desired-active, closes the current transport,
// and suppresses any scheduled reconnect. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	c.desiredActive = false
	if c.redialTimer != nil {
		c.redialTimer.Stop()
		c.redialTimer = nil
	}
	conn := c.conn
	ready := c.ready
	if conn != nil {
		c.state = StateClosing
	} else {
		c.state = StateClosed
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close() // read loop observes the close and finishes teardown
	} else if ready != nil {
		ready.settle(ErrSessionClosed)
	}
}

// Send enqueues an envelope. Valid in any state: envelopes enqueued before
// the handshake completes are held and flushed once the session is ready,
// never dropped silently; the held queue is discarded on transport loss.
func (c *Client) Send(typ string, data any, immediate bool) error {
	env, err := wire.NewEnvelope(typ, data)
	if err != nil {
		return err
	}
	c.batcher.enqueue(env, immediate)
	return nil
}

// AwaitReady blocks until the current incarnation's handshake settles. It
// returns nil once $ready has been processed, or the auth/close error that
// rejected the handshake. Each incarnation settles independently; callers
// must not assume the result holds across reconnects.
func (c *Client) AwaitReady(ctx context.Context) error {
	c.mu.Lock()
	g := c.ready
	c.mu.Unlock()
	return g.wait(ctx)
}

// HeartbeatParams returns the heartbeat parameters adopted from the server
// during the current incarnation's handshake.
func (c *Client) HeartbeatParams() (pingInterval, pongTimeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingInterval, c.pongTimeout
}

// RedialAttempts returns the number of reopen attempts scheduled since the
// last successful handshake.
func (c *Client) RedialAttempts() int {
	return c.redial.Attempts()
}

// beginIncarnationLocked starts a new incarnation: a fresh epoch, a fresh
// ready gate if the previous one already settled, and an asynchronous dial.
func (c *Client) beginIncarnationLocked() {
	c.epoch++
	c.state = StateConnecting
	if c.ready.settled() {
		c.ready = newReadyGate()
	}
	go c.dial(c.epoch)
}

func (c *Client) dial(epoch uint64) {
	conn, resp, err := c.dialer.Dial(c.url, c.header) // nolint: bodyclose // gorilla owns the response body
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	if c.epoch != epoch || !c.desiredActive {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		logger.WithField("url", c.url).WithError(err).Warn("dial failed")
		c.handleClose(epoch, errors.Wrap(err, "dial failed"))
		return
	}
	c.conn = conn
	c.state = StateAuthPending
	ready := c.ready
	c.authTimer = time.AfterFunc(c.authTimeout, func() {
		// The handshake future rejects, but the transport is left open;
		// the watchdog or the peer decides its fate.
		ready.settle(ErrAuthTimeout)
	})
	c.mu.Unlock()

	go c.readLoop(conn, epoch)
}

func (c *Client) readLoop(conn *websocket.Conn, epoch uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(epoch, err)
			return
		}
		c.handleInbound(epoch, data)
	}
}

func (c *Client) handleInbound(epoch uint64, data []byte) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	hb := c.hb
	c.mu.Unlock()

	// Any inbound traffic proves liveness; this reset is not cancelable.
	if hb != nil {
		hb.reset()
	}

	envelopes, errs := wire.Decode(data)
	for _, err := range errs {
		logger.WithError(err).Warn("dropped malformed line")
	}
	for _, env := range envelopes {
		if !wire.IsControl(env.Type) {
			if c.State() != StateReady {
				logger.WithField("type", env.Type).Warn("application message before ready dropped")
				continue
			}
			c.listeners.dispatch(env)
			continue
		}
		if !c.listeners.dispatch(env) {
			continue
		}
		c.handleControl(epoch, env)
	}
}

func (c *Client) handleControl(epoch uint64, env wire.Envelope) {
	switch env.Type {
	case wire.TypeAuthReady:
		c.submitCredentials(epoch)
	case wire.TypeReady:
		c.handleReady(epoch, env)
	case wire.TypePing:
		if err := c.Send(wire.TypePong, echoPayload(env), true); err != nil {
			logger.WithError(err).Warn("pong reply failed")
		}
	case wire.TypePong:
		// Nothing beyond the generic watchdog reset.
	case wire.TypeError:
		logger.WithField("payload", string(env.Data)).Warn("peer reported error")
	}
}

// submitCredentials answers $auth_ready. Credentials bypass the batcher: the
// held queue must stay held until the handshake completes.
func (c *Client) submitCredentials(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	ready := c.ready
	c.mu.Unlock()
	if conn == nil {
		return
	}

	if c.creds == nil {
		// Programmer error: the server demands auth this client cannot
		// supply. Abort without retrying.
		logger.Error("server requested credentials but none are configured")
		ready.settle(ErrNoCredentialSource)
		c.Close()
		return
	}

	payload, err := c.creds.Produce(c)
	if err != nil {
		ready.settle(errors.Wrap(err, "produce credentials failed"))
		conn.Close()
		return
	}
	env, err := wire.NewEnvelope(wire.TypeAuth, payload)
	if err != nil {
		ready.settle(err)
		return
	}
	if err := writeEnvelopes(conn, &c.writeMu, []wire.Envelope{env}); err != nil {
		logger.WithError(err).Warn("auth submit failed")
	}
}

func (c *Client) handleReady(epoch uint64, env wire.Envelope) {
	var payload wire.ReadyPayload
	if err := env.DecodeData(&payload); err != nil {
		logger.WithError(err).Error("malformed ready payload")
		return
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
	c.state = StateReady
	c.pingInterval = time.Duration(payload.PingInterval) * time.Millisecond
	c.pongTimeout = time.Duration(payload.PongTimeout) * time.Millisecond
	hb := newHeartbeat(c.pingInterval, c.pongTimeout, c.sendHeartbeatPing, c.expireHeartbeat(epoch))
	c.hb = hb
	ready := c.ready
	c.mu.Unlock()

	// A completed handshake restarts the backoff schedule, so a recovered
	// flaky link redials promptly next time.
	c.redial.Reset()
	hb.start()
	ready.settle(nil)
	c.batcher.setWritable(true)

	logger.WithFields(logrus.Fields{
		"pingInterval": c.pingInterval,
		"pongTimeout":  c.pongTimeout,
	}).Debug("session ready")
}

// handleClose finishes one incarnation: tear down every timer belonging to
// it, settle the handshake future if still pending, dispatch the synthetic
// $close, and schedule a redial when still desired-active.
func (c *Client) handleClose(epoch uint64, cause error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	hb := c.hb
	c.hb = nil
	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
	c.pingInterval = 0
	c.pongTimeout = 0

	// Settle before the redial timer is armed: a zero-delay redial must see
	// a settled gate so it allocates a fresh one for its own handshake.
	if cause == nil {
		cause = ErrSessionClosed
	}
	c.ready.settle(errors.Wrap(cause, "closed before ready"))

	redialing := c.desiredActive
	if redialing {
		c.state = StateReconnecting
		delay := c.redial.Next()
		c.redialTimer = time.AfterFunc(delay, c.redialFire)
		logger.WithFields(logrus.Fields{
			"delay":   delay,
			"attempt": c.redial.Attempts(),
		}).Info("reconnect scheduled")
	} else {
		c.state = StateClosed
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if hb != nil {
		hb.stop()
	}
	c.batcher.reset()
	c.listeners.dispatch(wire.Envelope{Type: wire.TypeClose})
}

func (c *Client) redialFire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.desiredActive || c.state != StateReconnecting {
		return
	}
	c.beginIncarnationLocked()
}

func (c *Client) writeBatch(envelopes []wire.Envelope) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if err := writeEnvelopes(conn, &c.writeMu, envelopes); err != nil {
		logger.WithError(err).Warn("batched write failed")
	}
}

func (c *Client) sendHeartbeatPing() {
	if err := c.Send(wire.TypePing, time.Now().UnixMilli(), true); err != nil {
		logger.WithError(err).Warn("ping send failed")
	}
}

func (c *Client) expireHeartbeat(epoch uint64) func() {
	return func() {
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			return
		}
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		logger.Warn("heartbeat timeout, closing transport")
		if env, err := wire.NewEnvelope(wire.TypeError, ErrHeartbeatTimeout.Error()); err == nil {
			if werr := writeEnvelopes(conn, &c.writeMu, []wire.Envelope{env}); werr != nil {
				logger.WithError(werr).Debug("timeout notice write failed")
			}
		}
		conn.Close() // the read loop observes the close and reconnects
	}
}
