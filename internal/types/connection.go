package types

// ConnectionState is the connection manager's externally visible state.
type ConnectionState string

const (
	ConnStateDisconnected ConnectionState = "disconnected"
	ConnStateConnecting   ConnectionState = "connecting"
	ConnStateConnected    ConnectionState = "connected"
	ConnStateBackoff      ConnectionState = "backoff"
	ConnStateClosing      ConnectionState = "closing"
)

// DisconnectReason explains why a connection left the connected state.
// The GUI only ever sees these reason codes, never raw transport errors.
type DisconnectReason string

const (
	ReasonNone             DisconnectReason = ""
	ReasonDialFailed       DisconnectReason = "dial_failed"
	ReasonReadError        DisconnectReason = "read_error"
	ReasonPeerClosed       DisconnectReason = "peer_closed"
	ReasonHeartbeatTimeout DisconnectReason = "heartbeat_timeout"
	ReasonSchemaMismatch   DisconnectReason = "schema_mismatch"
	ReasonShutdown         DisconnectReason = "shutdown"
)

// ConnectionStatus is a point-in-time description of the managed connection.
type ConnectionStatus struct {
	State      ConnectionState
	Reason     DisconnectReason
	RetryCount int
	// AttemptID identifies the current or most recent connection attempt
	// in logs.
	AttemptID string
}
