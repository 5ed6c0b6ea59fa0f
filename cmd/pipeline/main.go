package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/coingecko-etl/internal/coingecko"
	"github.com/kjannette/coingecko-etl/internal/config"
	"github.com/kjannette/coingecko-etl/internal/db"
	"github.com/kjannette/coingecko-etl/internal/logging"
	"github.com/kjannette/coingecko-etl/internal/notifications"
	"github.com/kjannette/coingecko-etl/internal/pipeline"
	"github.com/kjannette/coingecko-etl/internal/repository"
	"github.com/kjannette/coingecko-etl/internal/scheduler"
	"github.com/kjannette/coingecko-etl/internal/schema"
)

const usage = `usage: pipeline [-config path] <command>

commands:
  extract    fetch current and historical data into raw JSON files
  transform  turn the latest raw files into curated record files
  schema     create namespaces, tables, indexes and views
  load       upsert the latest curated record files
  run        all of the above in order, printing a run report
  schedule   run the full pipeline now and then every PIPELINE_INTERVAL
`

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	cmd := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.WithFields(cfg.Fields()).WithField("command", cmd).Debug("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd, cfg, log); err != nil {
		log.WithError(err).WithField("command", cmd).Error("pipeline command failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, cfg *config.Config, log *logrus.Logger) error {
	switch cmd {
	case "extract", "transform", "schema", "load", "run", "schedule":
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}

	// Only stages that touch the database open a pool.
	var pool *pgxpool.Pool
	if cmd != "extract" && cmd != "transform" {
		p, err := db.Connect(ctx, cfg.DSN(), db.PipelinePool)
		if err != nil {
			return fmt.Errorf("connect %s: %w", cfg.MaskedDSN(), err)
		}
		defer p.Close()
		if err := db.TestConnection(ctx, p, log); err != nil {
			return err
		}
		pool = p
	}

	var (
		sm     pipeline.SchemaManager
		loader pipeline.Loader
	)
	if pool != nil {
		sm = schema.NewManager(pool, log)
		loader = repository.NewLoader(pool, log)
	}
	runner := pipeline.NewRunner(cfg, coingecko.NewClient(cfg, log), sm, loader, log)
	notify := notifications.NewSender(cfg.WebhookURL, cfg.NotifyName, log)

	switch cmd {
	case "extract":
		_, err := runner.Extract(ctx)
		return err
	case "transform":
		_, err := runner.TransformLatest(ctx)
		return err
	case "schema":
		_, err := runner.Schema(ctx)
		return err
	case "load":
		_, _, err := runner.LoadLatest(ctx)
		return err
	case "schedule":
		sched := scheduler.New(cfg.ScheduleInterval, func(ctx context.Context) {
			notify.NotifyRun(ctx, runner.Run(ctx))
		}, log)
		sched.Start(ctx)
		<-ctx.Done()
		sched.Stop()
		return nil
	}

	rep := runner.Run(ctx)
	notify.NotifyRun(ctx, rep)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if rep.Failed() {
		return fmt.Errorf("stage %s: %w", rep.FailedStage, rep.Err)
	}
	return nil
}
