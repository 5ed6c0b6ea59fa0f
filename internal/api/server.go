package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/coingecko-etl/internal/config"
	"github.com/kjannette/coingecko-etl/internal/models"
	"github.com/kjannette/coingecko-etl/internal/repository"
)

const (
	serviceName    = "CoinGecko ETL API"
	serviceVersion = "1.0.0"
)

// CoinStore is the read side the handlers need. *repository.CoinRepo
// satisfies it.
type CoinStore interface {
	List(ctx context.Context, p repository.ListParams) ([]models.CoinSummary, error)
	Get(ctx context.Context, coinID string) (*models.MarketDataRecord, error)
	Historical(ctx context.Context, coinID string) ([]models.HistoricalDataRecord, error)
	TopGainers(ctx context.Context, limit int) ([]models.CoinSummary, error)
	TopLosers(ctx context.Context, limit int) ([]models.CoinSummary, error)
	TopMarketCap(ctx context.Context, limit int) ([]models.CoinSummary, error)
	Stats(ctx context.Context) (models.MarketStats, error)
	Search(ctx context.Context, q string, limit int) ([]models.CoinSummary, error)
	Counts(ctx context.Context) (models.TableCounts, error)
}

type Server struct {
	store        CoinStore
	httpServer   *http.Server
	apiKey       string
	queryTimeout time.Duration
	log          logrus.FieldLogger
}

func NewServer(store CoinStore, cfg *config.Config, log logrus.FieldLogger) *Server {
	s := &Server{
		store:        store,
		apiKey:       cfg.APIKey,
		queryTimeout: cfg.QueryTimeout,
		log:          log.WithField("component", "api"),
	}
	if s.queryTimeout <= 0 {
		s.queryTimeout = 5 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.APIPort),
		Handler:      s.routes(cfg.CORSAllowOrigin),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(corsOrigin string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Coin routes
	mux.HandleFunc("GET /v1/coins", s.handleListCoins)
	mux.HandleFunc("GET /v1/coins/{coin_id}", s.handleGetCoin)
	mux.HandleFunc("GET /v1/coins/{coin_id}/historical", s.handleCoinHistorical)

	// Ranking routes
	mux.HandleFunc("GET /v1/top-gainers", s.handleTopGainers)
	mux.HandleFunc("GET /v1/top-losers", s.handleTopLosers)
	mux.HandleFunc("GET /v1/top-market-cap", s.handleTopMarketCap)

	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/search", s.handleSearch)

	return s.requestIDMiddleware(s.accessLogMiddleware(corsMiddleware(s.authMiddleware(mux), corsOrigin)))
}

// Handler exposes the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	fields := logrus.Fields{"addr": s.httpServer.Addr, "auth": s.apiKey != ""}
	s.log.WithFields(fields).Info("REST API server started")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": serviceName,
		"version": serviceVersion,
		"status":  "running",
		"endpoints": []string{
			"/health",
			"/v1/coins",
			"/v1/coins/{coin_id}",
			"/v1/coins/{coin_id}/historical",
			"/v1/top-gainers",
			"/v1/top-losers",
			"/v1/top-market-cap",
			"/v1/stats",
			"/v1/search",
		},
	})
}

// queryContext bounds one handler's database work.
func (s *Server) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.queryTimeout)
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// serverError logs the cause with the request id and answers with a generic
// body; internal errors never reach clients.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	id := RequestID(r.Context())
	s.log.WithFields(logrus.Fields{
		"request_id": id,
		"path":       r.URL.Path,
	}).WithError(err).Error(msg)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":      "internal server error",
		"request_id": id,
	})
}
