package api

import (
	"net/http"
	"time"

	"github.com/kjannette/coingecko-etl/internal/models"
)

type healthResponse struct {
	Status    string              `json:"status"`
	Timestamp string              `json:"timestamp"`
	Services  healthServices      `json:"services"`
	Counts    *models.TableCounts `json:"counts,omitempty"`
}

type healthServices struct {
	Database string `json:"database"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  healthServices{Database: "connected"},
	}

	counts, err := s.store.Counts(ctx)
	if err != nil {
		s.log.WithField("request_id", RequestID(r.Context())).WithError(err).Warn("health check failed")
		resp.Status = "degraded"
		resp.Services.Database = "disconnected"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Counts = &counts
	writeJSON(w, http.StatusOK, resp)
}
