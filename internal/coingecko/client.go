package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/coingecko-etl/internal/config"
	"github.com/kjannette/coingecko-etl/internal/httputil"
	"github.com/kjannette/coingecko-etl/internal/models"
)

const (
	apiKeyHeader = "x-cg-demo-api-key"
	dateLayout   = "02-01-2006"
	perPage      = 250
)

type ErrorKind int

const (
	Transient ErrorKind = iota // rate limited, server error or network failure
	Permanent                  // unknown coin, bad request or undecodable body
)

func (k ErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// FetchError is returned by every Client method.
type FetchError struct {
	Kind       ErrorKind
	Op         string
	CoinID     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "coingecko %s (%s)", e.Op, e.Kind)
	if e.CoinID != "" {
		fmt.Fprintf(&b, " coin=%s", e.CoinID)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Transient() bool { return e.Kind == Transient }

// NotFound reports whether the API said the coin does not exist.
func (e *FetchError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsNotFound reports whether err is a FetchError for an unknown coin.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.NotFound()
}

type Client struct {
	baseURL    string
	apiKey     string
	vsCurrency string
	httpClient *http.Client
	retry      httputil.RetryPolicy
	log        logrus.FieldLogger
}

func NewClient(cfg *config.Config, log logrus.FieldLogger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.CoinGeckoBaseURL, "/"),
		apiKey:     cfg.CoinGeckoAPIKey,
		vsCurrency: cfg.VSCurrency,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		retry: httputil.RetryPolicy{
			MaxAttempts: cfg.FetchMaxAttempts,
			BaseDelay:   cfg.FetchBaseDelay,
			MaxDelay:    cfg.FetchMaxDelay,
		},
		log: log.WithField("component", "coingecko"),
	}
}

// WithClock swaps the retry clock, for tests.
func (c *Client) WithClock(clock httputil.Clock) *Client {
	c.retry.Clock = clock
	return c
}

// FetchCurrent returns the markets snapshot for the given coin ids, ordered
// by market cap.
func (c *Client) FetchCurrent(ctx context.Context, coinIDs []string) ([]models.RawCoinSnapshot, error) {
	const op = "fetch current"
	if len(coinIDs) == 0 {
		return nil, &FetchError{Kind: Permanent, Op: op, Err: errors.New("no coin ids")}
	}

	q := url.Values{}
	q.Set("vs_currency", c.vsCurrency)
	q.Set("ids", strings.Join(coinIDs, ","))
	q.Set("order", "market_cap_desc")
	q.Set("per_page", fmt.Sprint(perPage))
	q.Set("page", "1")
	q.Set("sparkline", "false")
	q.Set("locale", "en")

	var out []models.RawCoinSnapshot
	if err := c.get(ctx, op, "", "/coins/markets", q, &out); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{"requested": len(coinIDs), "received": len(out)}).Info("fetched current market data")
	return out, nil
}

// FetchHistorical returns the snapshot of one coin on the given UTC date.
func (c *Client) FetchHistorical(ctx context.Context, coinID string, date time.Time) (models.RawHistoricalSnapshot, error) {
	const op = "fetch historical"
	var out models.RawHistoricalSnapshot

	q := url.Values{}
	q.Set("date", date.UTC().Format(dateLayout))
	q.Set("localization", "false")

	if err := c.get(ctx, op, coinID, "/coins/"+url.PathEscape(coinID)+"/history", q, &out); err != nil {
		return out, err
	}

	c.log.WithFields(logrus.Fields{"coin_id": coinID, "date": q.Get("date")}).Info("fetched historical data")
	return out, nil
}

func (c *Client) get(ctx context.Context, op, coinID, path string, q url.Values, dst any) error {
	endpoint := c.baseURL + path + "?" + q.Encode()

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, c.log, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set(apiKeyHeader, c.apiKey)
		}
		return req, nil
	})
	if err != nil {
		var ex *httputil.ExhaustedError
		if errors.As(err, &ex) {
			return &FetchError{Kind: Transient, Op: op, CoinID: coinID, StatusCode: ex.StatusCode, Err: err}
		}
		if ctx.Err() != nil {
			return &FetchError{Kind: Transient, Op: op, CoinID: coinID, Err: err}
		}
		return &FetchError{Kind: Permanent, Op: op, CoinID: coinID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &FetchError{
			Kind:       Permanent,
			Op:         op,
			CoinID:     coinID,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &FetchError{Kind: Permanent, Op: op, CoinID: coinID, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
