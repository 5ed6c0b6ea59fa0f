package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const historicalDateLayout = "02-01-2006"

var vsCurrencyRegexp = regexp.MustCompile(`^[a-z]{3,5}$`)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// CoinGecko
	CoinGeckoBaseURL string
	CoinGeckoAPIKey  string
	CoinIDs          []string
	VSCurrency       string
	HistoricalDate   time.Time

	// Fetch retry policy
	FetchMaxAttempts int
	FetchBaseDelay   time.Duration
	FetchMaxDelay    time.Duration
	HTTPTimeout      time.Duration

	// Pipeline
	DataDir          string
	ScheduleInterval time.Duration
	WebhookURL       string
	NotifyName       string

	// Query API
	APIPort         int
	APIKey          string
	CORSAllowOrigin string
	QueryTimeout    time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// fileConfig is the optional file overlay, TOML or YAML by extension. Only
// the fetch settings live there; secrets stay in the environment.
type fileConfig struct {
	Fetch struct {
		CoinIDs        []string `toml:"coin_ids" yaml:"coin_ids"`
		VSCurrency     string   `toml:"vs_currency" yaml:"vs_currency"`
		HistoricalDate string   `toml:"historical_date" yaml:"historical_date"`
		DataDir        string   `toml:"data_dir" yaml:"data_dir"`
	} `toml:"fetch" yaml:"fetch"`
}

// Load reads .env, then the TOML file at path (skipped when path is empty or
// missing), then lets environment variables override both.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     "localhost",
		DBPort:     5432,
		DBName:     "coingecko_etl",
		DBUser:     "coingecko_user",
		DBPassword: "coingecko_password",
		DBSSLMode:  "disable",

		CoinGeckoBaseURL: "https://api.coingecko.com/api/v3",
		CoinIDs:          []string{"bitcoin", "ethereum", "cardano", "solana"},
		VSCurrency:       "usd",

		FetchMaxAttempts: 4,
		FetchBaseDelay:   2 * time.Second,
		FetchMaxDelay:    30 * time.Second,
		HTTPTimeout:      15 * time.Second,

		DataDir:          "data",
		ScheduleInterval: 24 * time.Hour,
		NotifyName:       "coingecko-etl",

		APIPort:         8000,
		CORSAllowOrigin: "*",
		QueryTimeout:    5 * time.Second,

		LogLevel:  "info",
		LogFormat: "text",
	}

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	fc, err := decodeFile(path)
	if err != nil {
		return err
	}

	if len(fc.Fetch.CoinIDs) > 0 {
		c.CoinIDs = normalizeIDs(fc.Fetch.CoinIDs)
	}
	if fc.Fetch.VSCurrency != "" {
		c.VSCurrency = strings.ToLower(fc.Fetch.VSCurrency)
	}
	if fc.Fetch.HistoricalDate != "" {
		d, err := ParseHistoricalDate(fc.Fetch.HistoricalDate)
		if err != nil {
			return fmt.Errorf("fetch.historical_date: %w", err)
		}
		c.HistoricalDate = d
	}
	if fc.Fetch.DataDir != "" {
		c.DataDir = fc.Fetch.DataDir
	}
	return nil
}

func decodeFile(path string) (fileConfig, error) {
	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fc, fmt.Errorf("read %s: %w", path, err)
		}
		// ${VAR} references are expanded before parsing
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &fc); err != nil {
			return fc, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return fc, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return fc, nil
}

func (c *Config) applyEnv() error {
	c.DBHost = envStr("POSTGRES_HOST", c.DBHost)
	c.DBPort = envInt("POSTGRES_PORT", c.DBPort)
	c.DBName = envStr("POSTGRES_DB", c.DBName)
	c.DBUser = envStr("POSTGRES_USER", c.DBUser)
	c.DBPassword = envStr("POSTGRES_PASSWORD", c.DBPassword)
	c.DBSSLMode = envStr("POSTGRES_SSLMODE", c.DBSSLMode)

	c.CoinGeckoBaseURL = strings.TrimRight(envStr("COINGECKO_BASE_URL", c.CoinGeckoBaseURL), "/")
	c.CoinGeckoAPIKey = envStr("COINGECKO_API_KEY", c.CoinGeckoAPIKey)
	if v := os.Getenv("COIN_IDS"); v != "" {
		c.CoinIDs = normalizeIDs(strings.Split(v, ","))
	}
	c.VSCurrency = strings.ToLower(envStr("VS_CURRENCY", c.VSCurrency))
	if v := os.Getenv("HISTORICAL_DATE"); v != "" {
		d, err := ParseHistoricalDate(v)
		if err != nil {
			return fmt.Errorf("HISTORICAL_DATE: %w", err)
		}
		c.HistoricalDate = d
	}

	c.FetchMaxAttempts = envInt("FETCH_MAX_ATTEMPTS", c.FetchMaxAttempts)
	c.FetchBaseDelay = envMillis("FETCH_BASE_DELAY_MS", c.FetchBaseDelay)
	c.FetchMaxDelay = envMillis("FETCH_MAX_DELAY_MS", c.FetchMaxDelay)
	c.HTTPTimeout = envSeconds("HTTP_TIMEOUT_SECONDS", c.HTTPTimeout)

	c.DataDir = envStr("DATA_DIR", c.DataDir)
	c.WebhookURL = envStr("WEBHOOK_URL", c.WebhookURL)
	c.NotifyName = envStr("NOTIFY_NAME", c.NotifyName)
	if v := os.Getenv("PIPELINE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PIPELINE_INTERVAL: %w", err)
		}
		c.ScheduleInterval = d
	}

	c.APIPort = envInt("API_PORT", c.APIPort)
	c.APIKey = envStr("API_KEY", c.APIKey)
	c.CORSAllowOrigin = envStr("CORS_ALLOW_ORIGIN", c.CORSAllowOrigin)
	c.QueryTimeout = envSeconds("QUERY_TIMEOUT_SECONDS", c.QueryTimeout)

	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("LOG_FORMAT", c.LogFormat)
	return nil
}

func (c *Config) Validate() error {
	var errs []string

	if len(c.CoinIDs) == 0 {
		errs = append(errs, "at least one coin id is required")
	}
	if !vsCurrencyRegexp.MatchString(c.VSCurrency) {
		errs = append(errs, fmt.Sprintf("vs currency %q is not a currency code", c.VSCurrency))
	}
	if _, err := url.ParseRequestURI(c.CoinGeckoBaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("COINGECKO_BASE_URL is invalid: %v", err))
	}
	if c.FetchMaxAttempts < 1 {
		errs = append(errs, "FETCH_MAX_ATTEMPTS must be at least 1")
	}
	if c.FetchBaseDelay > c.FetchMaxDelay {
		errs = append(errs, fmt.Sprintf("fetch base delay (%s) cannot exceed max delay (%s)", c.FetchBaseDelay, c.FetchMaxDelay))
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Sprintf("API_PORT %d out of range", c.APIPort))
	}
	if c.DBHost == "" || c.DBName == "" || c.DBUser == "" {
		errs = append(errs, "POSTGRES_HOST, POSTGRES_DB and POSTGRES_USER are required")
	}
	if c.DataDir == "" {
		errs = append(errs, "DATA_DIR is required")
	}
	if c.ScheduleInterval < time.Minute {
		errs = append(errs, fmt.Sprintf("PIPELINE_INTERVAL %s is shorter than one minute", c.ScheduleInterval))
	}
	if c.WebhookURL != "" {
		if _, err := url.ParseRequestURI(c.WebhookURL); err != nil {
			errs = append(errs, fmt.Sprintf("WEBHOOK_URL is invalid: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// MaskedDSN is DSN with the password replaced, for logs.
func (c *Config) MaskedDSN() string {
	if c.DBPassword == "" {
		return c.DSN()
	}
	return strings.Replace(c.DSN(), url.UserPassword(c.DBUser, c.DBPassword).String(), c.DBUser+":***", 1)
}

// Fields summarises the effective configuration for startup logs. Secrets
// are reported only as set or unset.
func (c *Config) Fields() logrus.Fields {
	return logrus.Fields{
		"database":        c.MaskedDSN(),
		"coingecko_url":   c.CoinGeckoBaseURL,
		"coingecko_key":   c.CoinGeckoAPIKey != "",
		"coins":           strings.Join(c.CoinIDs, ","),
		"vs_currency":     c.VSCurrency,
		"historical_date": c.historicalDateField(),
		"data_dir":        c.DataDir,
		"api_port":        c.APIPort,
		"api_auth":        c.APIKey != "",
		"webhook":         c.WebhookURL != "",
	}
}

func (c *Config) historicalDateField() string {
	if c.HistoricalDate.IsZero() {
		return "yesterday"
	}
	return c.HistoricalDate.Format(historicalDateLayout)
}

// ParseHistoricalDate accepts the dd-mm-yyyy form the history endpoint uses.
func ParseHistoricalDate(s string) (time.Time, error) {
	d, err := time.Parse(historicalDateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("expected dd-mm-yyyy, got %q", s)
	}
	return d, nil
}

// --- helpers ---

// YesterdayUTC is the default historical date: midnight UTC of the day before
// now. Runs resolve it at extraction time when no date is configured.
func YesterdayUTC(now time.Time) time.Time {
	y := now.UTC().AddDate(0, 0, -1)
	return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC)
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envMillis(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
