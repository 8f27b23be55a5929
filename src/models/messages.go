package models

import "encoding/json"

// -----------------------------------------------------------------------------
// Upstream Provider Protocol
// -----------------------------------------------------------------------------

// Provider event discriminators. Each inbound text frame is a JSON array
// of event objects; Ev selects the concrete shape.
const (
	ProviderEvStatus    = "status"
	ProviderEvTrade     = "T"
	ProviderEvQuote     = "Q"
	ProviderEvAggregate = "A"
)

// Provider status values carried by status events.
const (
	ProviderAuthSuccess    = "auth_success"
	ProviderAuthFailed     = "auth_failed"
	ProviderMaxConnections = "max_connections"
	ProviderConnected      = "connected"
)

// -----------------------------------------------------------------------------

// MProviderEvent is one element of an upstream frame. Unused fields stay
// zero depending on Ev.
type MProviderEvent struct {
	Ev      string `json:"ev"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	Symbol    string  `json:"sym,omitempty"`
	Timestamp int64   `json:"t,omitempty"`
	Price     float64 `json:"p,omitempty"`
	Size      float64 `json:"s,omitempty"`

	BidPrice float64 `json:"bp,omitempty"`
	BidSize  float64 `json:"bs,omitempty"`
	AskPrice float64 `json:"ap,omitempty"`
	AskSize  float64 `json:"as,omitempty"`

	Open   float64 `json:"o,omitempty"`
	High   float64 `json:"h,omitempty"`
	Low    float64 `json:"l,omitempty"`
	Close  float64 `json:"c,omitempty"`
	Volume float64 `json:"v,omitempty"`
	VWAP   float64 `json:"vw,omitempty"`
}

// -----------------------------------------------------------------------------

// MControlFrame is an outbound control frame to the provider.
// Action is "auth", "subscribe" or "unsubscribe"; Params carries the API
// key or a comma-joined channel list.
type MControlFrame struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// -----------------------------------------------------------------------------
// Downstream Client Protocol
// -----------------------------------------------------------------------------

// Inbound client message types (closed set).
const (
	ClientMsgSubscribe   = "SUBSCRIBE"
	ClientMsgUnsubscribe = "UNSUBSCRIBE"
	ClientMsgPing        = "PING"
)

// Outbound server message types.
const (
	ServerMsgSetupUpdate   = "SETUP_UPDATE"
	ServerMsgServiceState  = "SERVICE_STATE"
	ServerMsgSubscriptions = "SUBSCRIPTIONS"
	ServerMsgPong          = "PONG"
	ServerMsgError         = "ERROR"
)

// -----------------------------------------------------------------------------

// MClientMessage is an inbound message from a downstream client.
type MClientMessage struct {
	Type    string `json:"type"`
	Payload struct {
		Symbols []string `json:"symbols"`
	} `json:"payload"`
}

// -----------------------------------------------------------------------------

// MServerMessage is an outbound message to downstream clients.
type MServerMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Symbols   []string        `json:"symbols,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp int64           `json:"timestamp"`
}
