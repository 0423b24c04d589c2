package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLC sampling interval for a trading pair.
// Prices and volumes are float64 in the pair's quote/base units.
type Candle struct {
	TS     time.Time `json:"ts"` // bucket start time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	VWAP   float64   `json:"vwap"`
	Volume float64   `json:"volume"`
	Count  int64     `json:"count"` // trades aggregated in this interval
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
