package models

import (
	"encoding/json"
	"time"
)

// RawCoinSnapshot is one element of the /coins/markets response. Fields are
// kept undecoded so the transformer can tell absent, null and malformed apart.
type RawCoinSnapshot map[string]json.RawMessage

// ID returns the coin id when it is a JSON string, "" otherwise.
func (r RawCoinSnapshot) ID() string {
	raw, ok := r["id"]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return id
}

// RawHistoricalSnapshot is the /coins/{id}/history response.
type RawHistoricalSnapshot struct {
	ID         string                   `json:"id"`
	Symbol     string                   `json:"symbol"`
	Name       string                   `json:"name"`
	MarketData *RawHistoricalMarketData `json:"market_data,omitempty"`
}

// RawHistoricalMarketData holds per-currency amounts keyed by lowercase
// currency code (usd, eur, btc, ...).
type RawHistoricalMarketData struct {
	CurrentPrice map[string]json.RawMessage `json:"current_price"`
	MarketCap    map[string]json.RawMessage `json:"market_cap"`
	TotalVolume  map[string]json.RawMessage `json:"total_volume"`
}

// RawMarketBatch is one extraction of current market data as written to the
// data dir.
type RawMarketBatch struct {
	CapturedAt time.Time         `json:"captured_at"`
	VSCurrency string            `json:"vs_currency"`
	Coins      []RawCoinSnapshot `json:"coins"`
}

// RawHistoricalBatch is one extraction of historical snapshots for a single
// date.
type RawHistoricalBatch struct {
	CapturedAt time.Time               `json:"captured_at"`
	Date       time.Time               `json:"date"`
	Snapshots  []RawHistoricalSnapshot `json:"snapshots"`
}
