package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kjannette/coingecko-etl/internal/api"
	"github.com/kjannette/coingecko-etl/internal/config"
	"github.com/kjannette/coingecko-etl/internal/db"
	"github.com/kjannette/coingecko-etl/internal/logging"
	"github.com/kjannette/coingecko-etl/internal/repository"
)

const banner = `
╔══════════════════════════════════════╗
║        CoinGecko ETL Query API       ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	fmt.Print(banner)

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
	log.WithFields(cfg.Fields()).Info("configuration loaded")

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.Connect(ctx, cfg.DSN(), db.APIPool)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer func() {
		pool.Close()
		log.Info("database pool closed")
	}()

	if err := db.TestConnection(ctx, pool, log); err != nil {
		pool.Close()
		log.WithError(err).Fatal("database test query failed")
	}

	srv := api.NewServer(repository.NewCoinRepo(pool), cfg, log)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("API server error")
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("API shutdown error")
	}
	log.Info("shutdown complete")
}
