package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"marketfeed/internal/market"
	"marketfeed/pkg/venue"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Venue    VenueConfig    `mapstructure:"venue"`
	Market   MarketConfig   `mapstructure:"market"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type VenueConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int           `mapstructure:"burst"`
}

type WSConfig struct {
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	AckTimeout     time.Duration `mapstructure:"ack_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	MaxAttempts    int           `mapstructure:"max_attempts"` // 0 = retry forever

	TickerChannel    string `mapstructure:"ticker_channel"`
	OrderBookChannel string `mapstructure:"orderbook_channel"`
}

type MarketConfig struct {
	Pair           string        `mapstructure:"pair"`
	Depth          int           `mapstructure:"depth"`
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
	TickCapacity   int           `mapstructure:"tick_capacity"`
	CandleCapacity int           `mapstructure:"candle_capacity"`
	// Resolutions lists the base, mid and coarse tiers, e.g. ["5m", "30m", "4h"].
	Resolutions []string `mapstructure:"resolutions"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // rotated file output (optional)
	Environment string `mapstructure:"environment"` // "dev" or "prod"
}

// Load reads config.yaml, then environment overrides (VENUE_WS_URL style).
// A missing file is not an error; defaults apply.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range searchPaths() {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func searchPaths() []string {
	var paths []string
	if dir := os.Getenv("FEED_CONFIG_DIR"); dir != "" {
		paths = append(paths, dir)
	}
	paths = append(paths, "./config", "../config", "../../config")

	ex, err := os.Executable()
	if err == nil && !strings.Contains(ex, "go-build") {
		paths = append(paths, filepath.Join(filepath.Dir(ex), "../config"))
	}
	return paths
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("venue.rest.base_url", "https://api.btcturk.com")
	v.SetDefault("venue.rest.timeout", 10*time.Second)
	v.SetDefault("venue.rest.rate_limit", 5.0)
	v.SetDefault("venue.rest.burst", 2)

	v.SetDefault("venue.ws.url", "wss://ws-feed-pro.btcturk.com")
	v.SetDefault("venue.ws.connect_timeout", 10*time.Second)
	v.SetDefault("venue.ws.ack_timeout", 5*time.Second)
	v.SetDefault("venue.ws.ping_interval", 15*time.Second)
	v.SetDefault("venue.ws.pong_timeout", 10*time.Second)
	v.SetDefault("venue.ws.backoff_base", time.Second)
	v.SetDefault("venue.ws.backoff_max", 30*time.Second)
	v.SetDefault("venue.ws.max_attempts", 0)
	v.SetDefault("venue.ws.ticker_channel", "ticker")
	v.SetDefault("venue.ws.orderbook_channel", "orderbook")

	v.SetDefault("market.pair", "BTCTRY")
	v.SetDefault("market.depth", 50)
	v.SetDefault("market.resync_interval", 5*time.Minute)
	v.SetDefault("market.poll_interval", 30*time.Second)
	v.SetDefault("market.health_interval", time.Minute)
	v.SetDefault("market.tick_capacity", 1000)
	v.SetDefault("market.candle_capacity", 500)
	v.SetDefault("market.resolutions", []string{"5m", "30m", "4h"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.dbname", "marketfeed")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.retention", 30*24*time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "feed")
}

// Tiers parses market.resolutions into the base, mid and coarse resolutions.
func (m MarketConfig) Tiers() ([3]market.Resolution, error) {
	var out [3]market.Resolution
	if len(m.Resolutions) != len(out) {
		return out, fmt.Errorf("market.resolutions: want %d entries, got %d", len(out), len(m.Resolutions))
	}
	for i, s := range m.Resolutions {
		meta, err := venue.ParseResolution(s)
		if err != nil {
			return out, fmt.Errorf("market.resolutions[%d]: %w", i, err)
		}
		out[i] = meta.Resolution
	}
	for i := 1; i < len(out); i++ {
		if _, err := out[i-1].Ratio(out[i]); err != nil {
			return out, fmt.Errorf("market.resolutions: %w", err)
		}
	}
	return out, nil
}

// Validate rejects settings the collector cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Market.Pair == "" {
		errs = append(errs, errors.New("market.pair is required"))
	}
	if c.Venue.WS.URL == "" {
		errs = append(errs, errors.New("venue.ws.url is required"))
	}
	if c.Venue.REST.BaseURL == "" {
		errs = append(errs, errors.New("venue.rest.base_url is required"))
	}
	if _, err := c.Market.Tiers(); err != nil {
		errs = append(errs, err)
	}

	positive := map[string]time.Duration{
		"market.resync_interval":   c.Market.ResyncInterval,
		"market.poll_interval":     c.Market.PollInterval,
		"venue.ws.connect_timeout": c.Venue.WS.ConnectTimeout,
		"venue.ws.ack_timeout":     c.Venue.WS.AckTimeout,
		"venue.ws.ping_interval":   c.Venue.WS.PingInterval,
		"venue.ws.pong_timeout":    c.Venue.WS.PongTimeout,
		"venue.ws.backoff_base":    c.Venue.WS.BackoffBase,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Venue.WS.BackoffMax < c.Venue.WS.BackoffBase {
		errs = append(errs, errors.New("venue.ws.backoff_max must not be below backoff_base"))
	}
	if c.Market.Depth <= 0 {
		errs = append(errs, errors.New("market.depth must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
