package transform

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kjannette/coingecko-etl/internal/models"
)

// MarketData converts raw /coins/markets elements into curated records.
// Each record is handled independently: a malformed or invalid one is
// dropped and reported, the rest are kept in input order. Every record gets
// capturedAt as its extraction timestamp.
func MarketData(raw []models.RawCoinSnapshot, capturedAt time.Time) ([]models.MarketDataRecord, []TransformError) {
	records := make([]models.MarketDataRecord, 0, len(raw))
	var errs []TransformError

	for _, snap := range raw {
		rec, err := marketRecord(snap, capturedAt)
		if err != nil {
			errs = append(errs, *err)
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

func marketRecord(snap models.RawCoinSnapshot, capturedAt time.Time) (models.MarketDataRecord, *TransformError) {
	r := &fieldReader{
		coinID: snap.ID(),
		lookup: func(name string) json.RawMessage { return snap[name] },
	}

	rec := models.MarketDataRecord{
		CoinID: r.stringOrEmpty("id"),
		Symbol: strings.ToUpper(r.requiredString("symbol")),
		Name:   r.requiredString("name"),

		CurrentPriceUSD: r.requiredDecimal("current_price"),
		High24hUSD:      r.optionalDecimal("high_24h"),
		Low24hUSD:       r.optionalDecimal("low_24h"),

		MarketCapUSD:             r.optionalInt("market_cap"),
		MarketCapRank:            r.optionalInt("market_cap_rank"),
		FullyDilutedValuationUSD: r.optionalInt("fully_diluted_valuation"),
		TotalVolumeUSD:           r.optionalInt("total_volume"),

		PriceChange24hUSD:            r.optionalDecimal("price_change_24h"),
		PriceChangePercentage24h:     r.optionalDecimal("price_change_percentage_24h"),
		MarketCapChange24hUSD:        r.optionalDecimal("market_cap_change_24h"),
		MarketCapChangePercentage24h: r.optionalDecimal("market_cap_change_percentage_24h"),

		CirculatingSupply: r.optionalDecimal("circulating_supply"),
		TotalSupply:       r.optionalDecimal("total_supply"),
		MaxSupply:         r.optionalDecimal("max_supply"),

		ATHUSD:              r.optionalDecimal("ath"),
		ATHChangePercentage: r.optionalDecimal("ath_change_percentage"),
		ATHDate:             r.optionalTime("ath_date"),
		ATLUSD:              r.optionalDecimal("atl"),
		ATLChangePercentage: r.optionalDecimal("atl_change_percentage"),
		ATLDate:             r.optionalTime("atl_date"),

		LastUpdated:         r.optionalTime("last_updated"),
		ExtractionTimestamp: capturedAt,
	}
	if r.err != nil {
		return models.MarketDataRecord{}, r.err
	}

	if err := validateMarket(&rec); err != nil {
		return models.MarketDataRecord{}, err
	}

	rec.PriceToATHRatio = Ratio(decimal.NewNullDecimal(rec.CurrentPriceUSD), rec.ATHUSD)
	rec.PriceToATLRatio = Ratio(decimal.NewNullDecimal(rec.CurrentPriceUSD), rec.ATLUSD)
	rec.MarketCapToVolumeRatio = Ratio(intToNullDecimal(rec.MarketCapUSD.Int64, rec.MarketCapUSD.Valid),
		intToNullDecimal(rec.TotalVolumeUSD.Int64, rec.TotalVolumeUSD.Valid))

	if err := checkCapacity(&rec); err != nil {
		return models.MarketDataRecord{}, err
	}
	return rec, nil
}

// validateMarket holds the integrity guards applied after decoding and
// before derived fields are computed.
func validateMarket(rec *models.MarketDataRecord) *TransformError {
	switch {
	case strings.TrimSpace(rec.CoinID) == "":
		return &TransformError{CoinID: rec.CoinID, Field: "id", Reason: ReasonEmptyCoinID}
	case rec.CurrentPriceUSD.IsNegative():
		return &TransformError{CoinID: rec.CoinID, Field: "current_price", Reason: ReasonNegativePrice}
	case rec.MarketCapUSD.Valid && rec.MarketCapUSD.Int64 < 0:
		return &TransformError{CoinID: rec.CoinID, Field: "market_cap", Reason: ReasonNegativeMarketCap}
	case rec.MarketCapRank.Valid && rec.MarketCapRank.Int64 <= 0:
		return &TransformError{CoinID: rec.CoinID, Field: "market_cap_rank", Reason: ReasonInvalidRank}
	}
	return nil
}

// Column capacities of curated.market_data: DECIMAL(20,8) holds twelve
// integer digits, DECIMAL(30,8) twenty-two.
var (
	narrowLimit = decimal.New(1, 12)
	wideLimit   = decimal.New(1, 22)
)

// checkCapacity drops a record that the loader could not store, so one
// extreme value cannot abort the whole load transaction.
func checkCapacity(rec *models.MarketDataRecord) *TransformError {
	fields := []struct {
		name  string
		value decimal.NullDecimal
		limit decimal.Decimal
	}{
		{"current_price", decimal.NewNullDecimal(rec.CurrentPriceUSD), narrowLimit},
		{"high_24h", rec.High24hUSD, narrowLimit},
		{"low_24h", rec.Low24hUSD, narrowLimit},
		{"price_change_24h", rec.PriceChange24hUSD, narrowLimit},
		{"ath", rec.ATHUSD, narrowLimit},
		{"atl", rec.ATLUSD, narrowLimit},
		{"price_change_percentage_24h", rec.PriceChangePercentage24h, wideLimit},
		{"market_cap_change_24h", rec.MarketCapChange24hUSD, wideLimit},
		{"market_cap_change_percentage_24h", rec.MarketCapChangePercentage24h, wideLimit},
		{"circulating_supply", rec.CirculatingSupply, wideLimit},
		{"total_supply", rec.TotalSupply, wideLimit},
		{"max_supply", rec.MaxSupply, wideLimit},
		{"ath_change_percentage", rec.ATHChangePercentage, wideLimit},
		{"atl_change_percentage", rec.ATLChangePercentage, wideLimit},
		{"price_to_ath_ratio", rec.PriceToATHRatio, wideLimit},
		{"price_to_atl_ratio", rec.PriceToATLRatio, wideLimit},
		{"market_cap_to_volume_ratio", rec.MarketCapToVolumeRatio, wideLimit},
	}
	for _, f := range fields {
		if f.value.Valid && f.value.Decimal.Abs().Round(8).GreaterThanOrEqual(f.limit) {
			return &TransformError{CoinID: rec.CoinID, Field: f.name, Reason: ReasonOutOfRange}
		}
	}
	return nil
}

// Ratio divides num by den. An absent operand or a zero denominator yields
// an absent ratio.
func Ratio(num, den decimal.NullDecimal) decimal.NullDecimal {
	if !num.Valid || !den.Valid || den.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(num.Decimal.Div(den.Decimal))
}

func intToNullDecimal(v int64, valid bool) decimal.NullDecimal {
	if !valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}
