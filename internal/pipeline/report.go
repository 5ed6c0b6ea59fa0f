package pipeline

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/coingecko-etl/internal/models"
	"github.com/kjannette/coingecko-etl/internal/repository"
	"github.com/kjannette/coingecko-etl/internal/transform"
)

type StageReport struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// RunReport is the structured outcome of one full pipeline run.
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Stages     []StageReport `json:"stages"`

	Fetched               int `json:"fetched"`
	HistoricalFetched     int `json:"historical_fetched"`
	Transformed           int `json:"transformed"`
	HistoricalTransformed int `json:"historical_transformed"`

	TransformErrors []transform.TransformError `json:"transform_errors"`
	Loaded          repository.LoadResult      `json:"loaded"`
	Counts          models.TableCounts         `json:"counts"`

	FailedStage string `json:"failed_stage,omitempty"`
	Err         error  `json:"-"`
	Error       string `json:"error,omitempty"`
}

func (r *RunReport) Failed() bool { return r.Err != nil }

func (r *RunReport) stage(now func() time.Time, name string, fn func() error) error {
	start := now()
	err := fn()
	sr := StageReport{Name: name, DurationMS: now().Sub(start).Milliseconds()}
	if err != nil {
		sr.Error = err.Error()
		r.FailedStage = name
	}
	r.Stages = append(r.Stages, sr)
	return err
}

func (r *RunReport) finish(end time.Time, err error) {
	r.Duration = end.Sub(r.StartedAt)
	r.DurationMS = r.Duration.Milliseconds()
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

func (r *RunReport) Fields() logrus.Fields {
	f := logrus.Fields{
		"run_id":           r.RunID,
		"duration":         r.Duration.String(),
		"stages":           len(r.Stages),
		"fetched":          r.Fetched,
		"transformed":      r.Transformed,
		"historical":       r.HistoricalTransformed,
		"transform_errors": len(r.TransformErrors),
		"market_rows":      r.Loaded.MarketRows,
	}
	if r.FailedStage != "" {
		f["failed_stage"] = r.FailedStage
	}
	return f
}
