package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoricalDataRecord is one curated row of curated.historical_data: a coin's
// multi-currency prices on SnapshotDate.
type HistoricalDataRecord struct {
	CoinID       string    `json:"coin_id"`
	SnapshotDate time.Time `json:"snapshot_date"`
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`

	PriceUSD decimal.Decimal `json:"price_usd"`
	PriceEUR decimal.Decimal `json:"price_eur"`
	PriceBTC decimal.Decimal `json:"price_btc"`
	PriceETH decimal.Decimal `json:"price_eth"`

	MarketCapUSD int64 `json:"market_cap_usd"`
	MarketCapEUR int64 `json:"market_cap_eur"`
	MarketCapBTC int64 `json:"market_cap_btc"`

	TotalVolumeUSD int64 `json:"total_volume_usd"`
	TotalVolumeEUR int64 `json:"total_volume_eur"`
	TotalVolumeBTC int64 `json:"total_volume_btc"`

	ExtractionTimestamp time.Time `json:"extraction_timestamp"`
}

var HistoricalDataColumns = []string{
	"coin_id", "snapshot_date", "symbol", "name",
	"price_usd", "price_eur", "price_btc", "price_eth",
	"market_cap_usd", "market_cap_eur", "market_cap_btc",
	"total_volume_usd", "total_volume_eur", "total_volume_btc",
	"extraction_timestamp",
}

func (r *HistoricalDataRecord) Values() []any {
	return []any{
		r.CoinID, r.SnapshotDate, r.Symbol, r.Name,
		r.PriceUSD, r.PriceEUR, r.PriceBTC, r.PriceETH,
		r.MarketCapUSD, r.MarketCapEUR, r.MarketCapBTC,
		r.TotalVolumeUSD, r.TotalVolumeEUR, r.TotalVolumeBTC,
		r.ExtractionTimestamp,
	}
}

func (r *HistoricalDataRecord) ScanTargets() []any {
	return []any{
		&r.CoinID, &r.SnapshotDate, &r.Symbol, &r.Name,
		&r.PriceUSD, &r.PriceEUR, &r.PriceBTC, &r.PriceETH,
		&r.MarketCapUSD, &r.MarketCapEUR, &r.MarketCapBTC,
		&r.TotalVolumeUSD, &r.TotalVolumeEUR, &r.TotalVolumeBTC,
		&r.ExtractionTimestamp,
	}
}
