package api

import (
	"context"
	"net/http"

	"github.com/kjannette/coingecko-etl/internal/models"
)

type rankingFunc func(ctx context.Context, limit int) ([]models.CoinSummary, error)

func (s *Server) handleTopGainers(w http.ResponseWriter, r *http.Request) {
	s.serveRanking(w, r, "top gainers", s.store.TopGainers)
}

func (s *Server) handleTopLosers(w http.ResponseWriter, r *http.Request) {
	s.serveRanking(w, r, "top losers", s.store.TopLosers)
}

func (s *Server) handleTopMarketCap(w http.ResponseWriter, r *http.Request) {
	s.serveRanking(w, r, "top market cap", s.store.TopMarketCap)
}

func (s *Server) serveRanking(w http.ResponseWriter, r *http.Request, name string, fetch rankingFunc) {
	limit, err := parseIntParam(r, "limit", defaultTopLimit, 1, maxTopLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	coins, err := fetch(ctx, limit)
	if err != nil {
		s.serverError(w, r, name, err)
		return
	}
	writeJSON(w, http.StatusOK, coins)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.serverError(w, r, "market stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
