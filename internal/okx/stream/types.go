package stream

import "time"

// PriceTick is a normalized per-symbol price update from the tickers
// channel. Last and Open24h are always finite; a ticker item with a
// non-numeric price never becomes a PriceTick.
type PriceTick struct {
	Symbol    string    `json:"symbol"`
	Last      float64   `json:"last"`
	Open24h   float64   `json:"open24h"`
	Vol24h    float64   `json:"vol24h"`
	High24h   float64   `json:"high24h"`
	Low24h    float64   `json:"low24h"`
	Timestamp time.Time `json:"timestamp"` // exchange timestamp
}

// Change returns the absolute 24h change (last - open).
func (t PriceTick) Change() float64 {
	return t.Last - t.Open24h
}

// ChangePercent returns the 24h change relative to the open, in
// percent. A zero open reports 0 rather than dividing by it.
func (t PriceTick) ChangePercent() float64 {
	if t.Open24h == 0 {
		return 0
	}
	return t.Change() / t.Open24h * 100
}
