package sock

// State is the lifecycle state of a client session incarnation. Transitions
// are monotonic within one incarnation; AuthPending is never skipped when the
// server has an authorizer configured.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateAuthPending
	StateReady
	StateClosing
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateAuthPending:
		return "auth_pending"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
