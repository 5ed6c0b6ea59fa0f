package transform

import (
	"database/sql/driver"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/coingecko-etl/internal/models"
)

// Summary describes one transformed market batch.
type Summary struct {
	Records        int             `json:"records"`
	MinPrice       decimal.Decimal `json:"min_price_usd"`
	MaxPrice       decimal.Decimal `json:"max_price_usd"`
	AvgPrice       decimal.Decimal `json:"avg_price_usd"`
	TotalMarketCap decimal.Decimal `json:"total_market_cap_usd"`
	AvgMarketCap   decimal.Decimal `json:"avg_market_cap_usd"`
	NullCounts     map[string]int  `json:"null_counts"`
}

func Summarize(records []models.MarketDataRecord) Summary {
	s := Summary{Records: len(records), NullCounts: map[string]int{}}
	if len(records) == 0 {
		return s
	}

	var priceSum decimal.Decimal
	capCount := 0
	for i := range records {
		rec := &records[i]
		p := rec.CurrentPriceUSD
		if i == 0 || p.LessThan(s.MinPrice) {
			s.MinPrice = p
		}
		if i == 0 || p.GreaterThan(s.MaxPrice) {
			s.MaxPrice = p
		}
		priceSum = priceSum.Add(p)

		if rec.MarketCapUSD.Valid {
			s.TotalMarketCap = s.TotalMarketCap.Add(decimal.NewFromInt(rec.MarketCapUSD.Int64))
			capCount++
		}

		for j, v := range rec.Values() {
			if isNull(v) {
				s.NullCounts[models.MarketDataColumns[j]]++
			}
		}
	}

	s.AvgPrice = priceSum.Div(decimal.NewFromInt(int64(len(records))))
	if capCount > 0 {
		s.AvgMarketCap = s.TotalMarketCap.Div(decimal.NewFromInt(int64(capCount)))
	}
	return s
}

// Fields renders the summary for structured logging.
func (s Summary) Fields() logrus.Fields {
	return logrus.Fields{
		"records":              s.Records,
		"min_price_usd":        s.MinPrice.StringFixed(2),
		"max_price_usd":        s.MaxPrice.StringFixed(2),
		"avg_price_usd":        s.AvgPrice.StringFixed(2),
		"total_market_cap_usd": s.TotalMarketCap.StringFixed(0),
		"null_counts":          s.NullCounts,
	}
}

func isNull(v any) bool {
	valuer, ok := v.(driver.Valuer)
	if !ok {
		return false
	}
	dv, err := valuer.Value()
	return err == nil && dv == nil
}
