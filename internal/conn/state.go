package conn

// State is the connection lifecycle state.
//
// DISCONNECTED → CONNECTING → CONNECTED → {CLOSING → CLOSED |
// RECONNECTING → CONNECTING → …}. Only client-initiated connections
// reconnect; server-accepted connections go straight to CLOSED on transport
// loss.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Role distinguishes who initiated the connection.
type Role int

const (
	// RoleClient dialed out and owns a reconnect policy.
	RoleClient Role = iota
	// RoleServer was accepted from a remote peer and never reconnects.
	RoleServer
)
