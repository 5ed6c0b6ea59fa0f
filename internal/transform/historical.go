package transform

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/kjannette/coingecko-etl/internal/models"
)

var (
	priceCurrencies  = []string{"usd", "eur", "btc", "eth"}
	amountCurrencies = []string{"usd", "eur", "btc"}
)

// HistoricalData converts one /coins/{id}/history snapshot into a curated
// row. The row is all-or-nothing: a missing currency or a non-numeric amount
// yields a *TransformError and no record.
func HistoricalData(raw models.RawHistoricalSnapshot, coinID, symbol, name string, date, capturedAt time.Time) (models.HistoricalDataRecord, error) {
	if strings.TrimSpace(coinID) == "" {
		return models.HistoricalDataRecord{}, &TransformError{Field: "id", Reason: ReasonEmptyCoinID}
	}
	md := raw.MarketData
	if md == nil {
		return models.HistoricalDataRecord{}, &TransformError{CoinID: coinID, Field: "market_data", Reason: ReasonMissingCurrency}
	}

	r := &fieldReader{coinID: coinID}
	prices := readCurrencies(r, "market_data.current_price", md.CurrentPrice, priceCurrencies, DecimalField)
	caps := readCurrencies(r, "market_data.market_cap", md.MarketCap, amountCurrencies, IntField)
	vols := readCurrencies(r, "market_data.total_volume", md.TotalVolume, amountCurrencies, IntField)
	if r.err != nil {
		return models.HistoricalDataRecord{}, r.err
	}

	return models.HistoricalDataRecord{
		CoinID:       coinID,
		SnapshotDate: dateOnly(date),
		Symbol:       strings.ToUpper(symbol),
		Name:         name,

		PriceUSD: prices["usd"],
		PriceEUR: prices["eur"],
		PriceBTC: prices["btc"],
		PriceETH: prices["eth"],

		MarketCapUSD: caps["usd"],
		MarketCapEUR: caps["eur"],
		MarketCapBTC: caps["btc"],

		TotalVolumeUSD: vols["usd"],
		TotalVolumeEUR: vols["eur"],
		TotalVolumeBTC: vols["btc"],

		ExtractionTimestamp: capturedAt,
	}, nil
}

func readCurrencies[T any](r *fieldReader, group string, values map[string]json.RawMessage, currencies []string, parse func(json.RawMessage) Field[T]) map[string]T {
	out := make(map[string]T, len(currencies))
	for _, cur := range currencies {
		name := group + "." + cur
		f := parse(values[cur])
		switch f.State {
		case Absent:
			r.fail(name, ReasonMissingCurrency)
		case Malformed:
			r.fail(name, ReasonMalformed)
		}
		out[cur] = f.Value
	}
	return out
}

// HistoricalBatch transforms every snapshot of one extraction. Symbol and
// name come from the snapshot itself, falling back to the current market
// records when the history endpoint left them empty.
func HistoricalBatch(batch models.RawHistoricalBatch, market []models.MarketDataRecord) ([]models.HistoricalDataRecord, []TransformError) {
	known := make(map[string]models.MarketDataRecord, len(market))
	for _, m := range market {
		known[m.CoinID] = m
	}

	records := make([]models.HistoricalDataRecord, 0, len(batch.Snapshots))
	var errs []TransformError
	for _, snap := range batch.Snapshots {
		symbol, name := snap.Symbol, snap.Name
		if m, ok := known[snap.ID]; ok {
			if symbol == "" {
				symbol = m.Symbol
			}
			if name == "" {
				name = m.Name
			}
		}

		rec, err := HistoricalData(snap, snap.ID, symbol, name, batch.Date, batch.CapturedAt)
		if err != nil {
			var te *TransformError
			if errors.As(err, &te) {
				errs = append(errs, *te)
			}
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
