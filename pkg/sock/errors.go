package sock

import "github.com/pkg/errors"

// ErrAuthTimeout indicates the auth handshake did not complete within AuthTimeout.
var ErrAuthTimeout = errors.New("auth timeout")

// ErrNoCredentialSource indicates the server requested credentials but the
// client was constructed without a CredentialSource. This is a configuration
// error and is not retried.
var ErrNoCredentialSource = errors.New("no credential source configured")

// ErrSessionClosed indicates the session was closed before or during the handshake.
var ErrSessionClosed = errors.New("session closed")

// ErrHeartbeatTimeout is the close cause when the liveness watchdog fires.
var ErrHeartbeatTimeout = errors.New("ping timeout")
