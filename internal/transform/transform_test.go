package transform

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/coingecko-etl/internal/models"
)

var capturedAt = time.Date(2025, 7, 14, 8, 0, 0, 0, time.UTC)

func rawCoin(t *testing.T, js string) models.RawCoinSnapshot {
	t.Helper()
	var snap models.RawCoinSnapshot
	require.NoError(t, json.Unmarshal([]byte(js), &snap))
	return snap
}

const bitcoinJSON = `{
	"id": "bitcoin",
	"symbol": "btc",
	"name": "Bitcoin",
	"current_price": 117988.0,
	"high_24h": 119000.5,
	"low_24h": 117000.25,
	"market_cap": 2347229497016,
	"market_cap_rank": 1,
	"fully_diluted_valuation": 2347229497016,
	"total_volume": 50000000000,
	"price_change_24h": -512.34,
	"price_change_percentage_24h": -0.43,
	"market_cap_change_24h": -10234567890.5,
	"market_cap_change_percentage_24h": -0.435,
	"circulating_supply": 19893943.0,
	"total_supply": 19893943.0,
	"max_supply": 21000000.0,
	"ath": 120000.0,
	"ath_change_percentage": -1.67,
	"ath_date": "2025-07-11T14:36:57.543Z",
	"atl": 67.81,
	"atl_change_percentage": 173892.3,
	"atl_date": "2013-07-06T00:00:00.000Z",
	"last_updated": "2025-07-14T07:56:01.937Z"
}`

func coinJSON(id, price string) string {
	return `{"id":"` + id + `","symbol":"` + id[:3] + `","name":"` + id + `","current_price":` + price + `,"market_cap":1000,"total_volume":10}`
}

func TestMarketData_BitcoinScenario(t *testing.T) {
	records, errs := MarketData([]models.RawCoinSnapshot{rawCoin(t, bitcoinJSON)}, capturedAt)
	require.Empty(t, errs)
	require.Len(t, records, 1)
	rec := records[0]

	athRatio, _ := rec.PriceToATHRatio.Decimal.Float64()
	atlRatio, _ := rec.PriceToATLRatio.Decimal.Float64()
	capRatio, _ := rec.MarketCapToVolumeRatio.Decimal.Float64()

	assert.True(t, rec.PriceToATHRatio.Valid)
	assert.InDelta(t, 0.9832, athRatio, 0.0001)
	assert.InDelta(t, 1739.9, atlRatio, 0.1)
	// 2347229497016 / 50000000000
	assert.InDelta(t, 46.9446, capRatio, 0.0001)
}

func TestMarketData_RoundTrip(t *testing.T) {
	records, errs := MarketData([]models.RawCoinSnapshot{rawCoin(t, bitcoinJSON)}, capturedAt)
	require.Empty(t, errs)
	rec := records[0]

	assert.Equal(t, "bitcoin", rec.CoinID)
	assert.Equal(t, "BTC", rec.Symbol)
	assert.Equal(t, "Bitcoin", rec.Name)
	assert.True(t, rec.CurrentPriceUSD.Equal(decimal.RequireFromString("117988")))
	assert.True(t, rec.High24hUSD.Decimal.Equal(decimal.RequireFromString("119000.5")))
	assert.True(t, rec.Low24hUSD.Decimal.Equal(decimal.RequireFromString("117000.25")))
	assert.Equal(t, int64(2347229497016), rec.MarketCapUSD.Int64)
	assert.Equal(t, int64(1), rec.MarketCapRank.Int64)
	assert.Equal(t, int64(2347229497016), rec.FullyDilutedValuationUSD.Int64)
	assert.Equal(t, int64(50000000000), rec.TotalVolumeUSD.Int64)
	assert.True(t, rec.PriceChange24hUSD.Decimal.Equal(decimal.RequireFromString("-512.34")))
	assert.True(t, rec.PriceChangePercentage24h.Decimal.Equal(decimal.RequireFromString("-0.43")))
	assert.True(t, rec.MarketCapChange24hUSD.Decimal.Equal(decimal.RequireFromString("-10234567890.5")))
	assert.True(t, rec.MaxSupply.Valid)
	assert.True(t, rec.MaxSupply.Decimal.Equal(decimal.NewFromInt(21000000)))
	assert.True(t, rec.ATLUSD.Decimal.Equal(decimal.RequireFromString("67.81")))
	assert.Equal(t, time.Date(2025, 7, 11, 14, 36, 57, 543000000, time.UTC), rec.ATHDate.Time)
	assert.Equal(t, time.Date(2013, 7, 6, 0, 0, 0, 0, time.UTC), rec.ATLDate.Time)
	assert.Equal(t, time.Date(2025, 7, 14, 7, 56, 1, 937000000, time.UTC), rec.LastUpdated.Time)
	assert.Equal(t, capturedAt, rec.ExtractionTimestamp)
}

func TestMarketData_NullableFieldsStayAbsent(t *testing.T) {
	js := `{"id":"eth","symbol":"eth","name":"Ethereum","current_price":3000,
		"max_supply":null,"fully_diluted_valuation":null,"market_cap_rank":null}`
	records, errs := MarketData([]models.RawCoinSnapshot{rawCoin(t, js)}, capturedAt)
	require.Empty(t, errs)
	rec := records[0]

	assert.False(t, rec.MaxSupply.Valid)
	assert.False(t, rec.FullyDilutedValuationUSD.Valid)
	assert.False(t, rec.MarketCapRank.Valid)
	assert.False(t, rec.MarketCapUSD.Valid)
	assert.False(t, rec.MarketCapToVolumeRatio.Valid)
	assert.False(t, rec.PriceToATHRatio.Valid)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"max_supply":null`)
}

func TestMarketData_ZeroDenominatorsYieldAbsentRatios(t *testing.T) {
	js := `{"id":"zero","symbol":"zro","name":"Zero","current_price":1.5,
		"ath":0,"atl":0,"market_cap":100,"total_volume":0}`
	records, errs := MarketData([]models.RawCoinSnapshot{rawCoin(t, js)}, capturedAt)
	require.Empty(t, errs)
	rec := records[0]

	assert.False(t, rec.PriceToATHRatio.Valid)
	assert.False(t, rec.PriceToATLRatio.Valid)
	assert.False(t, rec.MarketCapToVolumeRatio.Valid)
	// zero stays a real value
	assert.True(t, rec.TotalVolumeUSD.Valid)
	assert.Equal(t, int64(0), rec.TotalVolumeUSD.Int64)
}

func TestMarketData_PerRecordIsolation(t *testing.T) {
	raw := []models.RawCoinSnapshot{
		rawCoin(t, coinJSON("alpha", "1.0")),
		rawCoin(t, coinJSON("bravo", `"not-a-number"`)),
		rawCoin(t, coinJSON("charlie", "3.0")),
		rawCoin(t, coinJSON("delta", "4.0")),
	}

	records, errs := MarketData(raw, capturedAt)
	require.Len(t, records, 3)
	require.Len(t, errs, 1)
	assert.Equal(t, TransformError{CoinID: "bravo", Field: "current_price", Reason: ReasonMalformed}, errs[0])

	ids := []string{records[0].CoinID, records[1].CoinID, records[2].CoinID}
	assert.Equal(t, []string{"alpha", "charlie", "delta"}, ids)
}

func TestMarketData_BatchCohesionAndOrder(t *testing.T) {
	raw := []models.RawCoinSnapshot{
		rawCoin(t, coinJSON("zcash", "50")),
		rawCoin(t, coinJSON("aave", "300")),
		rawCoin(t, coinJSON("monero", "200")),
	}
	records, errs := MarketData(raw, capturedAt)
	require.Empty(t, errs)
	require.Len(t, records, 3)

	assert.Equal(t, "zcash", records[0].CoinID)
	assert.Equal(t, "aave", records[1].CoinID)
	assert.Equal(t, "monero", records[2].CoinID)
	for _, rec := range records {
		assert.Equal(t, capturedAt, rec.ExtractionTimestamp)
	}
}

func TestMarketData_Guards(t *testing.T) {
	tests := []struct {
		name string
		js   string
		want TransformError
	}{
		{
			name: "empty id",
			js:   `{"id":"","symbol":"x","name":"X","current_price":1}`,
			want: TransformError{CoinID: "", Field: "id", Reason: ReasonEmptyCoinID},
		},
		{
			name: "absent id",
			js:   `{"symbol":"x","name":"X","current_price":1}`,
			want: TransformError{CoinID: "", Field: "id", Reason: ReasonEmptyCoinID},
		},
		{
			name: "negative price",
			js:   `{"id":"neg","symbol":"neg","name":"Neg","current_price":-0.01}`,
			want: TransformError{CoinID: "neg", Field: "current_price", Reason: ReasonNegativePrice},
		},
		{
			name: "negative market cap",
			js:   `{"id":"cap","symbol":"cap","name":"Cap","current_price":1,"market_cap":-5}`,
			want: TransformError{CoinID: "cap", Field: "market_cap", Reason: ReasonNegativeMarketCap},
		},
		{
			name: "missing price",
			js:   `{"id":"np","symbol":"np","name":"NoPrice"}`,
			want: TransformError{CoinID: "np", Field: "current_price", Reason: ReasonMissing},
		},
		{
			name: "bad timestamp",
			js:   `{"id":"ts","symbol":"ts","name":"TS","current_price":1,"last_updated":"yesterday"}`,
			want: TransformError{CoinID: "ts", Field: "last_updated", Reason: ReasonMalformed},
		},
		{
			name: "rank overflow",
			js:   `{"id":"big","symbol":"big","name":"Big","current_price":1,"market_cap_rank":1e30}`,
			want: TransformError{CoinID: "big", Field: "market_cap_rank", Reason: ReasonMalformed},
		},
		{
			name: "zero rank",
			js:   `{"id":"r0","symbol":"r0","name":"R0","current_price":1,"market_cap_rank":0}`,
			want: TransformError{CoinID: "r0", Field: "market_cap_rank", Reason: ReasonInvalidRank},
		},
		{
			name: "negative rank",
			js:   `{"id":"rn","symbol":"rn","name":"RN","current_price":1,"market_cap_rank":-3}`,
			want: TransformError{CoinID: "rn", Field: "market_cap_rank", Reason: ReasonInvalidRank},
		},
		{
			name: "price beyond column",
			js:   `{"id":"huge","symbol":"huge","name":"Huge","current_price":1e12}`,
			want: TransformError{CoinID: "huge", Field: "current_price", Reason: ReasonOutOfRange},
		},
		{
			name: "ath change beyond column",
			js:   `{"id":"moon","symbol":"moon","name":"Moon","current_price":1,"ath_change_percentage":-2.5e22}`,
			want: TransformError{CoinID: "moon", Field: "ath_change_percentage", Reason: ReasonOutOfRange},
		},
		{
			name: "derived ratio beyond column",
			js:   `{"id":"tiny","symbol":"tiny","name":"Tiny","current_price":500000,"atl":1e-17}`,
			want: TransformError{CoinID: "tiny", Field: "price_to_atl_ratio", Reason: ReasonOutOfRange},
		},
		{
			name: "symbol wrong type",
			js:   `{"id":"sym","symbol":42,"name":"Sym","current_price":1}`,
			want: TransformError{CoinID: "sym", Field: "symbol", Reason: ReasonMalformed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, errs := MarketData([]models.RawCoinSnapshot{rawCoin(t, tt.js)}, capturedAt)
			assert.Empty(t, records)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.want, errs[0])
		})
	}
}

func TestMarketData_NegativeChangesAllowed(t *testing.T) {
	js := `{"id":"dip","symbol":"dip","name":"Dip","current_price":1,
		"price_change_24h":-0.2,"price_change_percentage_24h":-16.6}`
	records, errs := MarketData([]models.RawCoinSnapshot{rawCoin(t, js)}, capturedAt)
	require.Empty(t, errs)
	assert.True(t, records[0].PriceChangePercentage24h.Decimal.IsNegative())
}

func TestMarketData_ExtremeValuesWithinColumns(t *testing.T) {
	// dust tokens report ath/atl changes in the billions of percent
	js := `{"id":"dust","symbol":"dust","name":"Dust","current_price":0.00000001,"market_cap_rank":14000,
		"ath":999999999999.99,"atl":1e-10,"atl_change_percentage":9.4e15,"ath_change_percentage":-99.99999999}`
	records, errs := MarketData([]models.RawCoinSnapshot{rawCoin(t, js)}, capturedAt)
	require.Empty(t, errs)
	require.Len(t, records, 1)
	assert.Equal(t, int64(14000), records[0].MarketCapRank.Int64)
	assert.True(t, records[0].ATLChangePercentage.Decimal.Equal(decimal.RequireFromString("9.4e15")))
}

func TestIntField_TruncatesFraction(t *testing.T) {
	f := IntField(json.RawMessage(`1234.99`))
	require.Equal(t, Present, f.State)
	assert.Equal(t, int64(1234), f.Value)

	assert.Equal(t, Absent, IntField(json.RawMessage(`null`)).State)
	assert.Equal(t, Absent, IntField(nil).State)
	assert.Equal(t, Malformed, IntField(json.RawMessage(`"12"`)).State)
	assert.Equal(t, Malformed, IntField(json.RawMessage(`true`)).State)
}

func TestRatio(t *testing.T) {
	one := decimal.NewNullDecimal(decimal.NewFromInt(1))
	four := decimal.NewNullDecimal(decimal.NewFromInt(4))
	zero := decimal.NewNullDecimal(decimal.Zero)

	got := Ratio(one, four)
	require.True(t, got.Valid)
	assert.True(t, got.Decimal.Equal(decimal.RequireFromString("0.25")))
	assert.False(t, Ratio(one, zero).Valid)
	assert.False(t, Ratio(one, decimal.NullDecimal{}).Valid)
	assert.False(t, Ratio(decimal.NullDecimal{}, four).Valid)
}

func TestSummarize(t *testing.T) {
	raw := []models.RawCoinSnapshot{
		rawCoin(t, coinJSON("alpha", "10")),
		rawCoin(t, coinJSON("bravo", "30")),
	}
	records, _ := MarketData(raw, capturedAt)

	s := Summarize(records)
	assert.Equal(t, 2, s.Records)
	assert.True(t, s.MinPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, s.MaxPrice.Equal(decimal.NewFromInt(30)))
	assert.True(t, s.AvgPrice.Equal(decimal.NewFromInt(20)))
	assert.True(t, s.TotalMarketCap.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, 2, s.NullCounts["max_supply"])
	assert.Zero(t, s.NullCounts["coin_id"])
	assert.NotNil(t, s.Fields()["records"])

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.Records)
}
