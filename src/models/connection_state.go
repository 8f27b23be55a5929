package models

// -----------------------------------------------------------------------------
// Upstream Connection State
// -----------------------------------------------------------------------------

// Connection statuses reported downstream.
const (
	ConnInitializing = "initializing"
	ConnHealthy      = "healthy"
	ConnDegraded     = "degraded"
	ConnOffline      = "offline"
)

// Degraded / offline reasons.
const (
	ReasonAuthFailed     = "auth_failed"
	ReasonAuthTimeout    = "auth_timeout"
	ReasonMaxAttempts    = "max_attempts"
	ReasonMaxConnections = "max_connections"
	ReasonDisconnected   = "disconnected"
)

// -----------------------------------------------------------------------------

// MConnectionState is the single mutable value describing the upstream
// connection. Overwritten and broadcast on every transition; late
// subscribers get the last value.
type MConnectionState struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MHealthState is the single-writer health value owned by the stream
// manager and read by the /api/health route.
type MHealthState struct {
	Ready           bool  `json:"ready"`
	LastMessageUnix int64 `json:"last_message_unix"`
	ReconnectCount  int   `json:"reconnect_count"`
	SyntheticFeed   bool  `json:"synthetic_feed"`
}
