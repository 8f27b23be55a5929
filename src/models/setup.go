package models

// -----------------------------------------------------------------------------
// Setup Entity
// -----------------------------------------------------------------------------

// Setup lifecycle statuses. CLOSED is terminal.
const (
	SetupStatusForming   = "SETUP_FORMING"
	SetupStatusActive    = "ACTIVE"
	SetupStatusClosed    = "CLOSED"
	SetupStatusDismissed = "DISMISSED"
)

// Trade direction hypotheses.
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
)

// Setup types emitted by the detection rules.
const (
	SetupOpeningRange   = "opening_range_breakout"
	SetupEMABounce      = "ema_bounce"
	SetupVWAPCross      = "vwap_cross"
	SetupEMACloud       = "ema_cloud"
	SetupFibRetracement = "fib_retracement"
	SetupBarBreakout    = "bar_breakout"
)

// -----------------------------------------------------------------------------

// MSetup is a detected candidate trade opportunity. Identity is
// (symbol, per-symbol monotonic counter). Mutated in place on price
// updates, never deleted.
type MSetup struct {
	ID              string               `json:"id"`
	Symbol          string               `json:"symbol"`
	SetupType       string               `json:"setup_type"`
	Status          string               `json:"status"`
	Direction       string               `json:"direction"`
	Entry           float64              `json:"entry"`
	Stop            float64              `json:"stop"`
	Targets         []float64            `json:"targets"`
	TargetsHit      []bool               `json:"targets_hit"`
	ConfluenceScore int                  `json:"confluence_score"`
	Confidence      MConfidenceBreakdown `json:"confidence"`
	Timestamp       int64                `json:"timestamp"`
	LastUpdate      int64                `json:"last_update"`
}

// -----------------------------------------------------------------------------

// IsTerminal reports whether the setup can no longer change status.
func (s *MSetup) IsTerminal() bool {
	return s.Status == SetupStatusClosed || s.Status == SetupStatusDismissed
}

// -----------------------------------------------------------------------------

// MSetupEvent is a lifecycle event broadcast to downstream clients.
// Action is one of "created", "updated", "closed", "dismissed".
type MSetupEvent struct {
	Action string `json:"action"`
	Setup  MSetup `json:"setup"`
}
