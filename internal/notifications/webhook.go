package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/coingecko-etl/internal/httputil"
	"github.com/kjannette/coingecko-etl/internal/pipeline"
)

// Sender posts pipeline outcomes to a Slack or Discord compatible webhook.
// With no URL configured it only logs.
type Sender struct {
	webhookURL string
	name       string
	httpClient *http.Client
	retry      httputil.RetryPolicy
	log        logrus.FieldLogger
}

func NewSender(webhookURL, name string, log logrus.FieldLogger) *Sender {
	if name == "" {
		name = "coingecko-etl"
	}
	return &Sender{
		webhookURL: webhookURL,
		name:       name,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
		log: log.WithField("component", "notify"),
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}

// NotifyRun sends a one-line summary of a finished run. Delivery failures are
// logged and never change the run outcome.
func (s *Sender) NotifyRun(ctx context.Context, rep *pipeline.RunReport) {
	s.Send(ctx, RunSummary(rep))
}

func (s *Sender) Send(ctx context.Context, msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.name, msg)
	s.log.Info(formatted)

	if s.webhookURL == "" {
		return
	}

	body, err := json.Marshal(s.formatPayload(formatted))
	if err != nil {
		s.log.WithError(err).Error("marshal notification")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, s.log, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		s.log.WithError(err).Warn("notification not delivered")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		s.log.WithField("status", resp.StatusCode).Warn("webhook rejected notification")
	}
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.name,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.name,
	}
}

// RunSummary renders a run report as a single chat line.
func RunSummary(rep *pipeline.RunReport) string {
	if rep.Failed() {
		return fmt.Sprintf("run %s FAILED at %s after %s: %s",
			shortID(rep.RunID), rep.FailedStage, rep.Duration.Round(time.Millisecond), rep.Error)
	}
	return fmt.Sprintf("run %s ok in %s: fetched %d, loaded %d market / %d historical, %d records dropped",
		shortID(rep.RunID), rep.Duration.Round(time.Millisecond),
		rep.Fetched, rep.Loaded.MarketRows, rep.Loaded.HistoricalRows, len(rep.TransformErrors))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
