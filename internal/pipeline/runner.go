package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/coingecko-etl/internal/config"
	"github.com/kjannette/coingecko-etl/internal/models"
	"github.com/kjannette/coingecko-etl/internal/repository"
	"github.com/kjannette/coingecko-etl/internal/schema"
	"github.com/kjannette/coingecko-etl/internal/snapshot"
	"github.com/kjannette/coingecko-etl/internal/transform"
)

type Fetcher interface {
	FetchCurrent(ctx context.Context, coinIDs []string) ([]models.RawCoinSnapshot, error)
	FetchHistorical(ctx context.Context, coinID string, date time.Time) (models.RawHistoricalSnapshot, error)
}

type SchemaManager interface {
	Ensure(ctx context.Context) error
}

type Loader interface {
	Load(ctx context.Context, market []models.MarketDataRecord, historical []models.HistoricalDataRecord) (repository.LoadResult, error)
	Counts(ctx context.Context) (models.TableCounts, error)
}

// Stage names as they appear in reports and on the command line.
const (
	StageExtract   = "extract"
	StageTransform = "transform"
	StageSchema    = "schema"
	StageLoad      = "load"
)

// Extracted is the output of the extract stage.
type Extracted struct {
	Market     models.RawMarketBatch
	Historical models.RawHistoricalBatch
}

// Transformed is the output of the transform stage.
type Transformed struct {
	Market     []models.MarketDataRecord
	Historical []models.HistoricalDataRecord
	Errors     []transform.TransformError
	Summary    transform.Summary
}

type Runner struct {
	fetcher Fetcher
	schema  SchemaManager
	loader  Loader
	store   *snapshot.Store
	coinIDs []string
	date    time.Time // zero means yesterday relative to each run
	vs      string
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewRunner(cfg *config.Config, fetcher Fetcher, sm SchemaManager, loader Loader, log logrus.FieldLogger) *Runner {
	return &Runner{
		fetcher: fetcher,
		schema:  sm,
		loader:  loader,
		store:   snapshot.NewStore(cfg.DataDir),
		coinIDs: cfg.CoinIDs,
		date:    cfg.HistoricalDate,
		vs:      cfg.VSCurrency,
		log:     log.WithField("component", "pipeline"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Extract fetches current and historical data and writes both raw files.
// Any fetch failure is fatal.
func (r *Runner) Extract(ctx context.Context) (Extracted, error) {
	capturedAt := r.now()
	date := r.historicalDate(capturedAt)

	coins, err := r.fetcher.FetchCurrent(ctx, r.coinIDs)
	if err != nil {
		return Extracted{}, err
	}

	hist := models.RawHistoricalBatch{CapturedAt: capturedAt, Date: date}
	for _, id := range r.coinIDs {
		snap, err := r.fetcher.FetchHistorical(ctx, id, date)
		if err != nil {
			return Extracted{}, err
		}
		if snap.ID == "" {
			snap.ID = id
		}
		hist.Snapshots = append(hist.Snapshots, snap)
	}

	out := Extracted{
		Market:     models.RawMarketBatch{CapturedAt: capturedAt, VSCurrency: r.vs, Coins: coins},
		Historical: hist,
	}
	if err := r.saveJSON(snapshot.RawMarket, capturedAt, out.Market); err != nil {
		return Extracted{}, err
	}
	if err := r.saveJSON(snapshot.RawHistorical, capturedAt, out.Historical); err != nil {
		return Extracted{}, err
	}

	r.log.WithFields(logrus.Fields{
		"coins":      len(coins),
		"historical": len(hist.Snapshots),
		"date":       date.Format("2006-01-02"),
	}).Info("extraction complete")
	return out, nil
}

func (r *Runner) historicalDate(now time.Time) time.Time {
	if !r.date.IsZero() {
		return r.date
	}
	return config.YesterdayUTC(now)
}

// Transform turns an extraction into curated records. Bad records are
// reported in Errors and never fail the stage.
func (r *Runner) Transform(ctx context.Context, in Extracted) (Transformed, error) {
	market, errs := transform.MarketData(in.Market.Coins, in.Market.CapturedAt)
	hist, herrs := transform.HistoricalBatch(in.Historical, market)

	out := Transformed{
		Market:     market,
		Historical: hist,
		Errors:     append(errs, herrs...),
		Summary:    transform.Summarize(market),
	}

	for _, te := range out.Errors {
		r.log.WithFields(logrus.Fields{
			"coin_id": te.CoinID,
			"field":   te.Field,
			"reason":  te.Reason,
		}).Warn("record dropped")
	}

	stamp := in.Market.CapturedAt
	if err := r.saveJSON(snapshot.TransformedMarket, stamp, out.Market); err != nil {
		return Transformed{}, err
	}
	if err := r.saveJSON(snapshot.TransformedHistorical, stamp, out.Historical); err != nil {
		return Transformed{}, err
	}

	r.log.WithFields(out.Summary.Fields()).WithField("historical", len(hist)).Info("transformation complete")
	return out, nil
}

// Schema ensures the database layout and writes the DDL script next to the
// data files.
func (r *Runner) Schema(ctx context.Context) (string, error) {
	if err := r.schema.Ensure(ctx); err != nil {
		return "", err
	}
	at := r.now()
	path, err := r.store.SaveText(snapshot.SchemaScript, at, ".sql", schema.Script(at))
	if err != nil {
		return "", err
	}
	r.log.WithField("file", path).Info("schema script written")
	return path, nil
}

// Load upserts the transformed records and reads back the table counts.
func (r *Runner) Load(ctx context.Context, in Transformed) (repository.LoadResult, models.TableCounts, error) {
	res, err := r.loader.Load(ctx, in.Market, in.Historical)
	if err != nil {
		return repository.LoadResult{}, models.TableCounts{}, err
	}
	counts, err := r.loader.Counts(ctx)
	if err != nil {
		return res, models.TableCounts{}, fmt.Errorf("verify load: %w", err)
	}
	r.log.WithFields(logrus.Fields{
		"market_data_records":     counts.MarketData,
		"historical_data_records": counts.HistoricalData,
	}).Info("load verified")
	return res, counts, nil
}

// TransformLatest runs the transform stage on the newest raw files.
func (r *Runner) TransformLatest(ctx context.Context) (Transformed, error) {
	var in Extracted
	if _, err := r.store.LoadLatestJSON(snapshot.RawMarket, &in.Market); err != nil {
		return Transformed{}, err
	}
	if _, err := r.store.LoadLatestJSON(snapshot.RawHistorical, &in.Historical); err != nil {
		return Transformed{}, err
	}
	return r.Transform(ctx, in)
}

// LoadLatest runs the load stage on the newest transformed files.
func (r *Runner) LoadLatest(ctx context.Context) (repository.LoadResult, models.TableCounts, error) {
	var in Transformed
	if _, err := r.store.LoadLatestJSON(snapshot.TransformedMarket, &in.Market); err != nil {
		return repository.LoadResult{}, models.TableCounts{}, err
	}
	if _, err := r.store.LoadLatestJSON(snapshot.TransformedHistorical, &in.Historical); err != nil {
		return repository.LoadResult{}, models.TableCounts{}, err
	}
	return r.Load(ctx, in)
}

// Run executes extract, transform, schema and load in order. The first
// failing stage stops the run; the report says which one and why.
func (r *Runner) Run(ctx context.Context) *RunReport {
	rep := &RunReport{RunID: uuid.NewString(), StartedAt: r.now()}
	log := r.log.WithField("run_id", rep.RunID)
	log.Info("pipeline started")

	var (
		ext Extracted
		tr  Transformed
	)
	steps := []struct {
		name string
		fn   func() error
	}{
		{StageExtract, func() (err error) {
			ext, err = r.Extract(ctx)
			rep.Fetched = len(ext.Market.Coins)
			rep.HistoricalFetched = len(ext.Historical.Snapshots)
			return err
		}},
		{StageTransform, func() (err error) {
			tr, err = r.Transform(ctx, ext)
			rep.Transformed = len(tr.Market)
			rep.HistoricalTransformed = len(tr.Historical)
			rep.TransformErrors = tr.Errors
			return err
		}},
		{StageSchema, func() error {
			_, err := r.Schema(ctx)
			return err
		}},
		{StageLoad, func() (err error) {
			rep.Loaded, rep.Counts, err = r.Load(ctx, tr)
			return err
		}},
	}

	for _, st := range steps {
		if err := rep.stage(r.now, st.name, st.fn); err != nil {
			rep.finish(r.now(), err)
			log.WithFields(rep.Fields()).WithError(err).Error("pipeline failed")
			return rep
		}
	}

	rep.finish(r.now(), nil)
	log.WithFields(rep.Fields()).Info("pipeline finished")
	return rep
}

func (r *Runner) saveJSON(prefix string, at time.Time, v any) error {
	path, err := r.store.SaveJSON(prefix, at, v)
	if err != nil {
		return err
	}
	r.log.WithField("file", path).Debug("snapshot written")
	return nil
}
