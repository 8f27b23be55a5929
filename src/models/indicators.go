package models

// -----------------------------------------------------------------------------
// Derived Indicator Snapshot
// -----------------------------------------------------------------------------

// MIndicators is a derived snapshot of the indicator set for one symbol.
// Pointer fields stay nil until enough bar history exists (200 bars for
// SMA200, 50 for the rest).
type MIndicators struct {
	EMA9   *float64 `json:"ema9,omitempty"`
	EMA21  *float64 `json:"ema21,omitempty"`
	EMA50  *float64 `json:"ema50,omitempty"`
	SMA200 *float64 `json:"sma200,omitempty"`
	RSI14  *float64 `json:"rsi14,omitempty"`
	VWAP   *float64 `json:"vwap,omitempty"`
	ATR    *float64 `json:"atr,omitempty"`
}

// -----------------------------------------------------------------------------

// MConfluenceFactor is a named boolean signal contributing to setup confidence.
type MConfluenceFactor struct {
	Name    string  `json:"name"`
	Present bool    `json:"present"`
	Value   float64 `json:"value"`
}

// -----------------------------------------------------------------------------

// MConfidenceBreakdown carries the weighted confluence result.
// Total is the sum of the weights of present factors, capped at 100.
type MConfidenceBreakdown struct {
	Total     int                 `json:"total"`
	PerFactor []MConfluenceFactor `json:"per_factor"`
}

// -----------------------------------------------------------------------------

// PresentCount returns how many factors were marked present.
func (c MConfidenceBreakdown) PresentCount() int {
	n := 0
	for _, f := range c.PerFactor {
		if f.Present {
			n++
		}
	}
	return n
}
