package repository_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/coingecko-etl/internal/models"
	"github.com/kjannette/coingecko-etl/internal/repository"
	"github.com/kjannette/coingecko-etl/internal/schema"
	"github.com/kjannette/coingecko-etl/internal/testutil"
)

const testPrefix = "zz-test-"

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

// setup ensures the schema and removes rows left by earlier runs.
func setup(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool := testutil.SetupPool(t)
	ctx := context.Background()
	require.NoError(t, schema.NewManager(pool, quietLog()).Ensure(ctx))

	cleanup := func() {
		pool.Exec(ctx, `DELETE FROM curated.market_data WHERE coin_id LIKE $1`, testPrefix+"%")
		pool.Exec(ctx, `DELETE FROM curated.historical_data WHERE coin_id LIKE $1`, testPrefix+"%")
	}
	cleanup()
	t.Cleanup(cleanup)
	return pool
}

func record(id string, price string, change string, rank int64, at time.Time) models.MarketDataRecord {
	return models.MarketDataRecord{
		CoinID:                   testPrefix + id,
		Symbol:                   "ZZ" + id[:1],
		Name:                     "Test " + id,
		CurrentPriceUSD:          decimal.RequireFromString(price),
		MarketCapUSD:             null.IntFrom(1_000_000),
		MarketCapRank:            null.IntFrom(rank),
		TotalVolumeUSD:           null.IntFrom(10_000),
		PriceChangePercentage24h: decimal.NewNullDecimal(decimal.RequireFromString(change)),
		LastUpdated:              null.TimeFrom(at),
		ExtractionTimestamp:      at,
	}
}

func TestLoader_IdempotentUpsert(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	loader := repository.NewLoader(pool, quietLog())
	coins := repository.NewCoinRepo(pool)

	at := time.Now().UTC().Truncate(time.Microsecond)
	first := record("alpha", "1.5", "2.5", 9001, at)
	_, err := loader.Load(ctx, []models.MarketDataRecord{first}, nil)
	require.NoError(t, err)

	second := record("alpha", "2.75", "-1.25", 9001, at.Add(time.Minute))
	res, err := loader.Load(ctx, []models.MarketDataRecord{second}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MarketRows)

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM curated.market_data WHERE coin_id = $1`, first.CoinID).Scan(&n))
	assert.Equal(t, 1, n)

	got, err := coins.Get(ctx, first.CoinID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.CurrentPriceUSD.Equal(decimal.RequireFromString("2.75")))
	assert.True(t, got.PriceChangePercentage24h.Decimal.Equal(decimal.RequireFromString("-1.25")))
	assert.False(t, got.MaxSupply.Valid)
	assert.True(t, second.ExtractionTimestamp.Equal(got.ExtractionTimestamp))
}

func TestLoader_RollsBackWholeBatch(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	loader := repository.NewLoader(pool, quietLog())

	at := time.Now().UTC()
	good := record("good", "1", "1", 9002, at)
	bad := record("bad", "1", "1", 9003, at)
	// price beyond DECIMAL(20,8)
	bad.CurrentPriceUSD = decimal.RequireFromString("1e20")

	_, err := loader.Load(ctx, []models.MarketDataRecord{good, bad}, nil)
	require.Error(t, err)
	var le *repository.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, bad.CoinID, le.CoinID)

	got, err := repository.NewCoinRepo(pool).Get(ctx, good.CoinID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCoinRepo_Queries(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	loader := repository.NewLoader(pool, quietLog())
	coins := repository.NewCoinRepo(pool)

	at := time.Now().UTC()
	market := []models.MarketDataRecord{
		record("one", "10", "5.5", 9101, at),
		record("two", "20", "-3.2", 9102, at),
	}
	hist := []models.HistoricalDataRecord{
		{
			CoinID: testPrefix + "one", SnapshotDate: time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC),
			Symbol: "ZZO", Name: "Test one",
			PriceUSD: decimal.NewFromInt(9), PriceEUR: decimal.NewFromInt(8), PriceBTC: decimal.RequireFromString("0.0001"), PriceETH: decimal.RequireFromString("0.003"),
			MarketCapUSD: 1, MarketCapEUR: 1, MarketCapBTC: 1, TotalVolumeUSD: 1, TotalVolumeEUR: 1, TotalVolumeBTC: 1,
			ExtractionTimestamp: at,
		},
		{
			CoinID: testPrefix + "one", SnapshotDate: time.Date(2025, 7, 13, 0, 0, 0, 0, time.UTC),
			Symbol: "ZZO", Name: "Test one",
			PriceUSD: decimal.NewFromInt(10), PriceEUR: decimal.NewFromInt(9), PriceBTC: decimal.RequireFromString("0.0001"), PriceETH: decimal.RequireFromString("0.003"),
			MarketCapUSD: 1, MarketCapEUR: 1, MarketCapBTC: 1, TotalVolumeUSD: 1, TotalVolumeEUR: 1, TotalVolumeBTC: 1,
			ExtractionTimestamp: at,
		},
	}
	res, err := loader.Load(ctx, market, hist)
	require.NoError(t, err)
	assert.Equal(t, 2, res.HistoricalRows)

	rows, err := coins.Historical(ctx, testPrefix+"one")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 13, rows[0].SnapshotDate.Day())

	found, err := coins.Search(ctx, "ZZ-TEST-T", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, testPrefix+"two", found[0].CoinID)

	counts, err := loader.Counts(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, counts.MarketData, int64(2))
	assert.GreaterOrEqual(t, counts.HistoricalData, int64(2))

	stats, err := coins.Stats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalCoins, int64(2))
	assert.True(t, stats.LastUpdate.Valid)
}

func prefixed(rows []models.CoinSummary) []string {
	var ids []string
	for _, r := range rows {
		if strings.HasPrefix(r.CoinID, testPrefix) {
			ids = append(ids, strings.TrimPrefix(r.CoinID, testPrefix))
		}
	}
	return ids
}

func TestCoinRepo_Rankings(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	loader := repository.NewLoader(pool, quietLog())
	coins := repository.NewCoinRepo(pool)

	// changes far outside any real market move, so these rows head both views
	at := time.Now().UTC()
	market := []models.MarketDataRecord{
		record("g1", "1", "900003", 9301, at),
		record("g2", "1", "900001", 9302, at),
		record("g3", "1", "900002", 9303, at),
	}
	for i, change := range []string{"-900002", "-900007", "-900001", "-900005", "-900003", "-900006", "-900004"} {
		market = append(market, record(fmt.Sprintf("l%d", i+1), "1", change, int64(9311+i), at))
	}
	// ranks inside and just outside the market cap view
	market = append(market,
		record("cap3", "1", "0", 3, at),
		record("cap1", "1", "0", 1, at),
		record("cap11", "1", "0", 11, at),
	)
	_, err := loader.Load(ctx, market, nil)
	require.NoError(t, err)

	gainers, err := coins.TopGainers(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g3", "g2"}, prefixed(gainers))
	require.Len(t, gainers, 3)

	losers, err := coins.TopLosers(ctx, 7)
	require.NoError(t, err)
	require.Len(t, losers, 7)
	assert.Equal(t, []string{"l2", "l6", "l4", "l7", "l5", "l1", "l3"}, prefixed(losers))

	// views never cross sides
	gainers, err = coins.TopGainers(ctx, 50)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(gainers), 10)
	for _, g := range gainers {
		assert.True(t, g.PriceChangePercentage24h.Decimal.IsPositive(), g.CoinID)
	}
	losers, err = coins.TopLosers(ctx, 50)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(losers), 10)
	for _, l := range losers {
		assert.True(t, l.PriceChangePercentage24h.Decimal.IsNegative(), l.CoinID)
	}

	top, err := coins.TopMarketCap(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, []string{"cap1", "cap3"}, prefixed(top))
	for i, row := range top {
		require.True(t, row.MarketCapRank.Valid)
		assert.LessOrEqual(t, row.MarketCapRank.Int64, int64(10))
		if i > 0 {
			assert.GreaterOrEqual(t, row.MarketCapRank.Int64, top[i-1].MarketCapRank.Int64)
		}
	}
}

func TestCoinRepo_ListPagination(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	loader := repository.NewLoader(pool, quietLog())
	coins := repository.NewCoinRepo(pool)

	at := time.Now().UTC()
	var market []models.MarketDataRecord
	var want []string
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("p%02d", i)
		market = append(market, record(id, "1", "1", int64(9201+i), at))
		want = append(want, id)
	}
	_, err := loader.Load(ctx, market, nil)
	require.NoError(t, err)

	// skip whatever real rows sort ahead of the test ranks
	var ahead int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM curated.market_data WHERE market_cap_rank < 9201`).Scan(&ahead))

	first, err := coins.List(ctx, repository.ListParams{Limit: 5, Offset: ahead, SortBy: "market_cap_rank"})
	require.NoError(t, err)
	second, err := coins.List(ctx, repository.ListParams{Limit: 5, Offset: ahead + 5, SortBy: "market_cap_rank"})
	require.NoError(t, err)

	p1, p2 := prefixed(first), prefixed(second)
	assert.Equal(t, want[:5], p1)
	assert.Equal(t, want[5:], p2)
	for _, id := range p1 {
		assert.NotContains(t, p2, id)
	}

	var above int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM curated.market_data WHERE market_cap_rank > 9210`).Scan(&above))
	desc, err := coins.List(ctx, repository.ListParams{Limit: 3, Offset: above, SortBy: "market_cap_rank", Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"p09", "p08", "p07"}, prefixed(desc))
}
