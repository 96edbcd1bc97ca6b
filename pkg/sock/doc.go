// Package sock layers an authenticated, liveness-monitored, auto-reconnecting
// duplex messaging protocol on top of a gorilla/websocket transport.
//
// The package implements:
//   - Upgrader: upgrades an HTTP request and gates the session behind an
//     application-supplied credential check before any traffic flows
//   - Session: the server-side endpoint, lifetime-bound to the request context
//   - Client: the dialing endpoint, with exponential-backoff reconnection
//   - a ping/pong heartbeat watchdog that force-closes dead connections
//   - a debounced write batcher that coalesces bursts of outgoing envelopes
//     into a single transport write
//
// Messages are wire.Envelope values; types beginning with "$" are reserved
// for protocol-internal control traffic.
package sock
