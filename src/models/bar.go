package models

// -----------------------------------------------------------------------------
// Market Data Structures
// -----------------------------------------------------------------------------

// MBar represents an OHLCV aggregate for a fixed time bucket.
type MBar struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	VWAP      float64 `json:"vwap,omitempty"`
}

// -----------------------------------------------------------------------------

// TypicalPrice returns (H+L+C)/3, the price used for session VWAP.
func (b MBar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3.0
}

// -----------------------------------------------------------------------------

// MTrade is the latest trade print for a symbol. Ephemeral: only the most
// recent one is retained per symbol.
type MTrade struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
}

// -----------------------------------------------------------------------------

// MQuote is the latest top-of-book quote for a symbol.
type MQuote struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	BidPrice  float64 `json:"bid_price"`
	BidSize   float64 `json:"bid_size"`
	AskPrice  float64 `json:"ask_price"`
	AskSize   float64 `json:"ask_size"`
}
