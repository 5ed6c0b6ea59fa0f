package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/coingecko-etl/internal/models"
)

// SortColumns are the columns /v1/coins may sort by.
var SortColumns = map[string]bool{
	"market_cap_rank":             true,
	"current_price_usd":           true,
	"price_change_percentage_24h": true,
	"total_volume_usd":            true,
}

type ListParams struct {
	Limit  int
	Offset int
	SortBy string
	Desc   bool
}

var (
	marketSelect  = strings.Join(models.MarketDataColumns, ", ")
	summarySelect = strings.Join(models.CoinSummaryColumns, ", ")
	histSelect    = strings.Join(models.HistoricalDataColumns, ", ")
)

// CoinRepo serves the read side of the curated tables.
type CoinRepo struct {
	pool *pgxpool.Pool
}

func NewCoinRepo(pool *pgxpool.Pool) *CoinRepo {
	return &CoinRepo{pool: pool}
}

func (r *CoinRepo) List(ctx context.Context, p ListParams) ([]models.CoinSummary, error) {
	query, err := listSQL(p)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSummaries(rows)
}

// Get returns nil, nil when the coin is unknown.
func (r *CoinRepo) Get(ctx context.Context, coinID string) (*models.MarketDataRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+marketSelect+` FROM curated.market_data WHERE coin_id = $1`,
		coinID,
	)
	var rec models.MarketDataRecord
	if err := row.Scan(rec.ScanTargets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Historical returns the coin's snapshots, newest date first.
func (r *CoinRepo) Historical(ctx context.Context, coinID string) ([]models.HistoricalDataRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+histSelect+` FROM curated.historical_data
		 WHERE coin_id = $1 ORDER BY snapshot_date DESC`,
		coinID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoricalDataRecord
	for rows.Next() {
		var h models.HistoricalDataRecord
		if err := rows.Scan(h.ScanTargets()...); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *CoinRepo) TopGainers(ctx context.Context, limit int) ([]models.CoinSummary, error) {
	return r.fromView(ctx, "curated.top_gainers_24h", "price_change_percentage_24h DESC", limit)
}

func (r *CoinRepo) TopLosers(ctx context.Context, limit int) ([]models.CoinSummary, error) {
	return r.fromView(ctx, "curated.top_losers_24h", "price_change_percentage_24h ASC", limit)
}

func (r *CoinRepo) TopMarketCap(ctx context.Context, limit int) ([]models.CoinSummary, error) {
	return r.fromView(ctx, "curated.top_market_cap", "market_cap_rank ASC", limit)
}

func (r *CoinRepo) fromView(ctx context.Context, view, order string, limit int) ([]models.CoinSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+summarySelect+` FROM `+view+` ORDER BY `+order+`, coin_id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSummaries(rows)
}

func (r *CoinRepo) Stats(ctx context.Context) (models.MarketStats, error) {
	var s models.MarketStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(market_cap_usd), 0),
		        AVG(current_price_usd),
		        AVG(price_change_percentage_24h),
		        COUNT(*) FILTER (WHERE price_change_percentage_24h > 0),
		        COUNT(*) FILTER (WHERE price_change_percentage_24h < 0),
		        MAX(extraction_timestamp)
		 FROM curated.market_data`,
	).Scan(&s.TotalCoins, &s.TotalMarketCap, &s.AvgPrice, &s.AvgChange24h, &s.Gainers, &s.Losers, &s.LastUpdate)
	if err != nil {
		return models.MarketStats{}, err
	}
	return s, nil
}

// Search matches q case-insensitively as a substring of id, symbol or name.
func (r *CoinRepo) Search(ctx context.Context, q string, limit int) ([]models.CoinSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+summarySelect+` FROM curated.market_data
		 WHERE coin_id ILIKE $1 OR symbol ILIKE $1 OR name ILIKE $1
		 ORDER BY market_cap_rank ASC NULLS LAST, coin_id
		 LIMIT $2`,
		likePattern(q), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSummaries(rows)
}

func (r *CoinRepo) Counts(ctx context.Context) (models.TableCounts, error) {
	return countTables(ctx, r.pool)
}

// listSQL only interpolates whitelisted identifiers; limit and offset are
// bound as $1 and $2.
func listSQL(p ListParams) (string, error) {
	if !SortColumns[p.SortBy] {
		return "", fmt.Errorf("unsupported sort column %q", p.SortBy)
	}
	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(
		"SELECT %s FROM curated.market_data ORDER BY %s %s NULLS LAST, coin_id ASC LIMIT $1 OFFSET $2",
		summarySelect, p.SortBy, dir,
	), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

// --- scan helpers ---

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectSummaries(rows rowsIter) ([]models.CoinSummary, error) {
	out := []models.CoinSummary{}
	for rows.Next() {
		var c models.CoinSummary
		if err := rows.Scan(c.ScanTargets()...); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
