package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/coingecko-etl/internal/models"
)

const (
	marketTable     = "curated.market_data"
	historicalTable = "curated.historical_data"
)

var (
	upsertMarketSQL     = upsertSQL(marketTable, models.MarketDataColumns, []string{"coin_id"})
	upsertHistoricalSQL = upsertSQL(historicalTable, models.HistoricalDataColumns, []string{"coin_id", "snapshot_date"})
)

// LoadError wraps any failure inside the load transaction. Nothing from the
// failed call is committed.
type LoadError struct {
	Table  string
	CoinID string
	Err    error
}

func (e *LoadError) Error() string {
	if e.CoinID != "" {
		return fmt.Sprintf("load %s (coin %s): %v", e.Table, e.CoinID, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type LoadResult struct {
	MarketRows     int `json:"market_rows"`
	HistoricalRows int `json:"historical_rows"`
}

type Loader struct {
	pool *pgxpool.Pool
	log  logrus.FieldLogger
}

func NewLoader(pool *pgxpool.Pool, log logrus.FieldLogger) *Loader {
	return &Loader{pool: pool, log: log.WithField("component", "loader")}
}

// Load upserts both record sets in one transaction: either every row is
// written or none is.
func (l *Loader) Load(ctx context.Context, market []models.MarketDataRecord, historical []models.HistoricalDataRecord) (LoadResult, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return LoadResult{}, &LoadError{Table: marketTable, Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	type target struct{ table, coinID string }
	targets := make([]target, 0, len(market)+len(historical))

	for i := range market {
		batch.Queue(upsertMarketSQL, market[i].Values()...)
		targets = append(targets, target{marketTable, market[i].CoinID})
	}
	for i := range historical {
		batch.Queue(upsertHistoricalSQL, historical[i].Values()...)
		targets = append(targets, target{historicalTable, historical[i].CoinID})
	}

	br := tx.SendBatch(ctx, batch)
	for _, tg := range targets {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return LoadResult{}, &LoadError{Table: tg.table, CoinID: tg.coinID, Err: err}
		}
	}
	if err := br.Close(); err != nil {
		return LoadResult{}, &LoadError{Table: marketTable, Err: fmt.Errorf("close batch: %w", err)}
	}

	if err := tx.Commit(ctx); err != nil {
		return LoadResult{}, &LoadError{Table: marketTable, Err: fmt.Errorf("commit: %w", err)}
	}

	res := LoadResult{MarketRows: len(market), HistoricalRows: len(historical)}
	l.log.WithFields(logrus.Fields{
		"market_rows":     res.MarketRows,
		"historical_rows": res.HistoricalRows,
	}).Info("load committed")
	return res, nil
}

// Counts returns the curated row counts, used to verify a load.
func (l *Loader) Counts(ctx context.Context) (models.TableCounts, error) {
	return countTables(ctx, l.pool)
}

// upsertSQL builds INSERT .. ON CONFLICT (key) DO UPDATE SET col = EXCLUDED.col
// for every non-key column.
func upsertSQL(table string, columns, key []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	isKey := make(map[string]bool, len(key))
	for _, k := range key {
		isKey[k] = true
	}
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		if !isKey[c] {
			sets = append(sets, c+" = EXCLUDED."+c)
		}
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(key, ", "),
		strings.Join(sets, ", "),
	)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countTables(ctx context.Context, q queryRower) (models.TableCounts, error) {
	var c models.TableCounts
	err := q.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM curated.market_data),
		        (SELECT COUNT(*) FROM curated.historical_data)`,
	).Scan(&c.MarketData, &c.HistoricalData)
	if err != nil {
		return models.TableCounts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}
