package models

import (
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// MarketDataRecord is one curated row of curated.market_data.
type MarketDataRecord struct {
	CoinID string `json:"coin_id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`

	CurrentPriceUSD decimal.Decimal     `json:"current_price_usd"`
	High24hUSD      decimal.NullDecimal `json:"high_24h_usd"`
	Low24hUSD       decimal.NullDecimal `json:"low_24h_usd"`

	MarketCapUSD             null.Int `json:"market_cap_usd"`
	MarketCapRank            null.Int `json:"market_cap_rank"`
	FullyDilutedValuationUSD null.Int `json:"fully_diluted_valuation_usd"`
	TotalVolumeUSD           null.Int `json:"total_volume_usd"`

	PriceChange24hUSD            decimal.NullDecimal `json:"price_change_24h_usd"`
	PriceChangePercentage24h     decimal.NullDecimal `json:"price_change_percentage_24h"`
	MarketCapChange24hUSD        decimal.NullDecimal `json:"market_cap_change_24h_usd"`
	MarketCapChangePercentage24h decimal.NullDecimal `json:"market_cap_change_percentage_24h"`

	CirculatingSupply decimal.NullDecimal `json:"circulating_supply"`
	TotalSupply       decimal.NullDecimal `json:"total_supply"`
	MaxSupply         decimal.NullDecimal `json:"max_supply"`

	ATHUSD              decimal.NullDecimal `json:"ath_usd"`
	ATHChangePercentage decimal.NullDecimal `json:"ath_change_percentage"`
	ATHDate             null.Time           `json:"ath_date"`
	ATLUSD              decimal.NullDecimal `json:"atl_usd"`
	ATLChangePercentage decimal.NullDecimal `json:"atl_change_percentage"`
	ATLDate             null.Time           `json:"atl_date"`

	LastUpdated         null.Time `json:"last_updated"`
	ExtractionTimestamp time.Time `json:"extraction_timestamp"`

	PriceToATHRatio        decimal.NullDecimal `json:"price_to_ath_ratio"`
	PriceToATLRatio        decimal.NullDecimal `json:"price_to_atl_ratio"`
	MarketCapToVolumeRatio decimal.NullDecimal `json:"market_cap_to_volume_ratio"`
}

// MarketDataColumns lists the curated.market_data columns in the order used
// by Values and ScanTargets.
var MarketDataColumns = []string{
	"coin_id", "symbol", "name",
	"current_price_usd", "high_24h_usd", "low_24h_usd",
	"market_cap_usd", "market_cap_rank", "fully_diluted_valuation_usd", "total_volume_usd",
	"price_change_24h_usd", "price_change_percentage_24h",
	"market_cap_change_24h_usd", "market_cap_change_percentage_24h",
	"circulating_supply", "total_supply", "max_supply",
	"ath_usd", "ath_change_percentage", "ath_date",
	"atl_usd", "atl_change_percentage", "atl_date",
	"last_updated", "extraction_timestamp",
	"price_to_ath_ratio", "price_to_atl_ratio", "market_cap_to_volume_ratio",
}

func (r *MarketDataRecord) Values() []any {
	return []any{
		r.CoinID, r.Symbol, r.Name,
		r.CurrentPriceUSD, r.High24hUSD, r.Low24hUSD,
		r.MarketCapUSD, r.MarketCapRank, r.FullyDilutedValuationUSD, r.TotalVolumeUSD,
		r.PriceChange24hUSD, r.PriceChangePercentage24h,
		r.MarketCapChange24hUSD, r.MarketCapChangePercentage24h,
		r.CirculatingSupply, r.TotalSupply, r.MaxSupply,
		r.ATHUSD, r.ATHChangePercentage, r.ATHDate,
		r.ATLUSD, r.ATLChangePercentage, r.ATLDate,
		r.LastUpdated, r.ExtractionTimestamp,
		r.PriceToATHRatio, r.PriceToATLRatio, r.MarketCapToVolumeRatio,
	}
}

func (r *MarketDataRecord) ScanTargets() []any {
	return []any{
		&r.CoinID, &r.Symbol, &r.Name,
		&r.CurrentPriceUSD, &r.High24hUSD, &r.Low24hUSD,
		&r.MarketCapUSD, &r.MarketCapRank, &r.FullyDilutedValuationUSD, &r.TotalVolumeUSD,
		&r.PriceChange24hUSD, &r.PriceChangePercentage24h,
		&r.MarketCapChange24hUSD, &r.MarketCapChangePercentage24h,
		&r.CirculatingSupply, &r.TotalSupply, &r.MaxSupply,
		&r.ATHUSD, &r.ATHChangePercentage, &r.ATHDate,
		&r.ATLUSD, &r.ATLChangePercentage, &r.ATLDate,
		&r.LastUpdated, &r.ExtractionTimestamp,
		&r.PriceToATHRatio, &r.PriceToATLRatio, &r.MarketCapToVolumeRatio,
	}
}

// CoinSummary is the projection served by list endpoints and the
// gainers/losers/top-market-cap views.
type CoinSummary struct {
	CoinID                   string              `json:"coin_id"`
	Symbol                   string              `json:"symbol"`
	Name                     string              `json:"name"`
	CurrentPriceUSD          decimal.Decimal     `json:"current_price_usd"`
	MarketCapUSD             null.Int            `json:"market_cap_usd"`
	MarketCapRank            null.Int            `json:"market_cap_rank"`
	TotalVolumeUSD           null.Int            `json:"total_volume_usd"`
	PriceChangePercentage24h decimal.NullDecimal `json:"price_change_percentage_24h"`
	LastUpdated              null.Time           `json:"last_updated"`
	ExtractionTimestamp      time.Time           `json:"extraction_timestamp"`
}

var CoinSummaryColumns = []string{
	"coin_id", "symbol", "name", "current_price_usd", "market_cap_usd",
	"market_cap_rank", "total_volume_usd", "price_change_percentage_24h",
	"last_updated", "extraction_timestamp",
}

func (c *CoinSummary) ScanTargets() []any {
	return []any{
		&c.CoinID, &c.Symbol, &c.Name, &c.CurrentPriceUSD, &c.MarketCapUSD,
		&c.MarketCapRank, &c.TotalVolumeUSD, &c.PriceChangePercentage24h,
		&c.LastUpdated, &c.ExtractionTimestamp,
	}
}

// Summary projects a full record onto the list view.
func (r *MarketDataRecord) Summary() CoinSummary {
	return CoinSummary{
		CoinID:                   r.CoinID,
		Symbol:                   r.Symbol,
		Name:                     r.Name,
		CurrentPriceUSD:          r.CurrentPriceUSD,
		MarketCapUSD:             r.MarketCapUSD,
		MarketCapRank:            r.MarketCapRank,
		TotalVolumeUSD:           r.TotalVolumeUSD,
		PriceChangePercentage24h: r.PriceChangePercentage24h,
		LastUpdated:              r.LastUpdated,
		ExtractionTimestamp:      r.ExtractionTimestamp,
	}
}

// MarketStats aggregates curated.market_data.
type MarketStats struct {
	TotalCoins     int64               `json:"total_coins"`
	TotalMarketCap decimal.Decimal     `json:"total_market_cap"`
	AvgPrice       decimal.NullDecimal `json:"avg_price"`
	AvgChange24h   decimal.NullDecimal `json:"avg_price_change_percentage_24h"`
	Gainers        int64               `json:"gainers"`
	Losers         int64               `json:"losers"`
	LastUpdate     null.Time           `json:"last_update"`
}

// TableCounts are the curated row counts reported by /health and the loader.
type TableCounts struct {
	MarketData     int64 `json:"market_data_records"`
	HistoricalData int64 `json:"historical_data_records"`
}
