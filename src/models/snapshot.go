package models

// MPriceSnapshot is a point-in-time price view for one symbol.
type MPriceSnapshot struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"last_price"`
	PrevClose float64 `json:"prev_close"`
	Timestamp int64   `json:"timestamp"`
}
