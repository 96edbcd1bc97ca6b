package wire

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Control message types. Types beginning with "$" are reserved for
// protocol-internal use; everything else is an application message type.
const (
	// Server -> client message types
	TypeAuthReady = "$auth_ready"
	TypeReady     = "$ready"

	// Client -> server message types
	TypeAuth = "$auth"

	// Either direction
	TypePing  = "$ping"
	TypePong  = "$pong"
	TypeError = "$error"

	// TypeClose is dispatched locally when the transport closes.
	// It is never sent on the wire.
	TypeClose = "$close"
)

const controlPrefix = "$"

// IsControl reports whether typ belongs to the reserved control namespace.
func IsControl(typ string) bool {
	return strings.HasPrefix(typ, controlPrefix)
}

// Envelope is the unit of application and control messaging.
// Data is opaque to the protocol core except for the fixed handshake payloads.
// An Envelope is immutable once constructed.
type Envelope struct {
	Type string
	Data json.RawMessage
}

// NewEnvelope builds an Envelope of the given type, marshalling data as the payload.
// A nil data produces an envelope with no payload.
func NewEnvelope(typ string, data any) (Envelope, error) {
	env := Envelope{Type: typ}
	if data == nil {
		return env, nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		if len(raw) > 0 {
			env.Data = raw
		}
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "marshal %q payload failed", typ)
	}
	env.Data = raw
	return env, nil
}

// DecodeData unmarshals the envelope payload into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return errors.Errorf("envelope %q has no payload", e.Type)
	}
	return errors.Wrapf(json.Unmarshal(e.Data, v), "unmarshal %q payload failed", e.Type)
}

// ReadyPayload is the payload of a $ready envelope. Durations are in milliseconds;
// the server is authoritative for both values and the client adopts them.
type ReadyPayload struct {
	PingInterval int64 `json:"pingInterval"`
	PongTimeout  int64 `json:"pongTimeout"`
}
