package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"forecast-engine/internal/ledger"
	"forecast-engine/internal/signal"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Assets []string

	// Storage
	StoreBackend  string // ledger persistence: redis | sqlite | memory
	MarketSource  string // candle source: redis | sqlite
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	Journal       bool

	// Ledger
	Ledger ledger.Config

	// Refresh
	RefreshCron  string
	HourlyTF     int
	DailyTF      int
	HourlyPoints int
	DailyPoints  int

	// Surfaces
	HTTPAddr    string
	MetricsAddr string
	WebhookURL  string

	// Fusion weights; defaults unless WEIGHTS_FILE is set.
	WeightsFile string
	Signal      signal.Config

	LogLevel slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Assets:        ParseList(getEnv("ASSETS", "BTC,ETH")),
		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", "redis")),
		MarketSource:  strings.ToLower(getEnv("MARKET_SOURCE", "redis")),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/forecasts.db"),
		RefreshCron:   getEnv("REFRESH_CRON", "@every 30s"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":9096"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9097"),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		WeightsFile:   getEnv("WEIGHTS_FILE", ""),
		Ledger:        ledger.DefaultConfig(),
	}
	cfg.Ledger.Key = getEnv("LEDGER_KEY", cfg.Ledger.Key)

	var errs []string
	intVar := func(dst *int, key string, fallback int) {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		*dst = v
	}
	secondsVar := func(dst *time.Duration, key string, fallback time.Duration) {
		var n int
		intVar(&n, key, int(fallback/time.Second))
		*dst = time.Duration(n) * time.Second
	}

	intVar(&cfg.RedisDB, "REDIS_DB", 0)
	intVar(&cfg.Ledger.Capacity, "LEDGER_CAPACITY", cfg.Ledger.Capacity)
	secondsVar(&cfg.Ledger.MinSpacing, "LEDGER_MIN_SPACING_SEC", cfg.Ledger.MinSpacing)
	secondsVar(&cfg.Ledger.ShortHorizon, "SHORT_HORIZON_SEC", cfg.Ledger.ShortHorizon)
	secondsVar(&cfg.Ledger.LongHorizon, "LONG_HORIZON_SEC", cfg.Ledger.LongHorizon)
	intVar(&cfg.HourlyTF, "HOURLY_TF_SEC", 3600)
	intVar(&cfg.DailyTF, "DAILY_TF_SEC", 86400)
	intVar(&cfg.HourlyPoints, "HOURLY_POINTS", 120)
	intVar(&cfg.DailyPoints, "DAILY_POINTS", 30)

	journal, err := strconv.ParseBool(getEnv("JOURNAL_ENABLED", "true"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("JOURNAL_ENABLED: %v", err))
	}
	cfg.Journal = journal

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL: %v", err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}

	cfg.Signal, err = LoadWeights(cfg.WeightsFile)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("config: ASSETS is empty")
	}
	switch c.StoreBackend {
	case "redis", "sqlite", "memory":
	default:
		return fmt.Errorf("config: STORE_BACKEND %q must be redis, sqlite or memory", c.StoreBackend)
	}
	switch c.MarketSource {
	case "redis", "sqlite":
	default:
		return fmt.Errorf("config: MARKET_SOURCE %q must be redis or sqlite", c.MarketSource)
	}
	if c.Ledger.Capacity <= 0 {
		return fmt.Errorf("config: LEDGER_CAPACITY must be positive")
	}
	if c.Ledger.ShortHorizon <= 0 || c.Ledger.LongHorizon < c.Ledger.ShortHorizon {
		return fmt.Errorf("config: horizons must satisfy 0 < short <= long")
	}
	if r := c.Ledger.Retention(len(c.Assets)); r < c.Ledger.LongHorizon {
		return fmt.Errorf("config: ledger keeps ~%s of forecasts for %d assets, shorter than LONG_HORIZON_SEC %s; raise LEDGER_CAPACITY or LEDGER_MIN_SPACING_SEC",
			r, len(c.Assets), c.Ledger.LongHorizon)
	}
	if c.HourlyTF <= 0 || c.DailyTF <= 0 || c.HourlyPoints <= 0 || c.DailyPoints <= 0 {
		return fmt.Errorf("config: candle timeframes and window lengths must be positive")
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.StoreBackend == "redis" || c.MarketSource == "redis"
}

// UsesSQLite reports whether any component needs the SQLite database.
func (c *Config) UsesSQLite() bool {
	return c.StoreBackend == "sqlite" || c.MarketSource == "sqlite" || c.Journal
}

// LoadWeights reads a YAML fusion config over the defaults. Fields absent
// from the file keep their default value. An empty path returns defaults.
func LoadWeights(path string) (signal.Config, error) {
	cfg := signal.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read weights %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse weights %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("weights %s: %w", path, err)
	}
	return cfg, nil
}

// ParseList splits a comma-separated list, dropping blanks and duplicates.
func ParseList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}
