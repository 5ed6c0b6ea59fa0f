package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/kjannette/coingecko-etl/internal/repository"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	defaultTopLimit  = 10
	maxTopLimit      = 50
	maxQueryLength   = 100
)

// paramError is a client mistake in the query string; it maps to 400.
type paramError struct {
	name string
	msg  string
}

func (e *paramError) Error() string { return e.name + ": " + e.msg }

// parseIntParam reads an integer query parameter. An absent parameter yields
// def; anything unparsable or outside [lo, hi] is rejected, never clamped.
func parseIntParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &paramError{name, "must be an integer"}
	}
	if n < lo || n > hi {
		return 0, &paramError{name, fmt.Sprintf("must be between %d and %d", lo, hi)}
	}
	return n, nil
}

func parseListParams(r *http.Request) (repository.ListParams, error) {
	q := r.URL.Query()
	p := repository.ListParams{SortBy: "market_cap_rank"}

	var err error
	if p.Limit, err = parseIntParam(r, "limit", defaultListLimit, 1, maxListLimit); err != nil {
		return p, err
	}
	if p.Offset, err = parseIntParam(r, "offset", 0, 0, math.MaxInt32); err != nil {
		return p, err
	}

	if sb := q.Get("sort_by"); sb != "" {
		if !repository.SortColumns[sb] {
			return p, &paramError{"sort_by", "unsupported sort column"}
		}
		p.SortBy = sb
	}

	switch strings.ToLower(q.Get("order")) {
	case "", "asc":
	case "desc":
		p.Desc = true
	default:
		return p, &paramError{"order", "must be asc or desc"}
	}
	return p, nil
}

func (s *Server) handleListCoins(w http.ResponseWriter, r *http.Request) {
	p, err := parseListParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	coins, err := s.store.List(ctx, p)
	if err != nil {
		s.serverError(w, r, "list coins", err)
		return
	}
	writeJSON(w, http.StatusOK, coins)
}

func (s *Server) handleGetCoin(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("coin_id")

	ctx, cancel := s.queryContext(r)
	defer cancel()

	coin, err := s.store.Get(ctx, id)
	if err != nil {
		s.serverError(w, r, "get coin", err)
		return
	}
	if coin == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("coin %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, coin)
}

func (s *Server) handleCoinHistorical(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("coin_id")

	ctx, cancel := s.queryContext(r)
	defer cancel()

	rows, err := s.store.Historical(ctx, id)
	if err != nil {
		s.serverError(w, r, "coin historical", err)
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no historical data for coin %q", id))
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q: required")
		return
	}
	if len(q) > maxQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("q: at most %d characters", maxQueryLength))
		return
	}
	limit, err := parseIntParam(r, "limit", defaultTopLimit, 1, maxTopLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	coins, err := s.store.Search(ctx, q, limit)
	if err != nil {
		s.serverError(w, r, "search coins", err)
		return
	}
	writeJSON(w, http.StatusOK, coins)
}
