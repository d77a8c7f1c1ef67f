package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Finnhub   FinnhubConfig   `mapstructure:"finnhub"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	News      NewsConfig      `mapstructure:"news"`
	Watchlist WatchlistConfig `mapstructure:"watchlist"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// FinnhubConfig holds market data gateway configuration.
// NewsRequestsPerMinute is carved out of MaxRequestsPerMinute while streaming,
// so headline lookups are not starved by the poller.
type FinnhubConfig struct {
	APIKey                string        `mapstructure:"api_key"`
	BaseURL               string        `mapstructure:"base_url"`
	StreamURL             string        `mapstructure:"stream_url"`
	Exchange              string        `mapstructure:"exchange"`
	Timeout               time.Duration `mapstructure:"timeout"`
	MaxRequestsPerMinute  int           `mapstructure:"max_requests_per_minute"`
	NewsRequestsPerMinute int           `mapstructure:"news_requests_per_minute"`
	Burst                 int           `mapstructure:"burst"`
	RateLimitRetryDelay   time.Duration `mapstructure:"rate_limit_retry_delay"`
}

// ScannerConfig holds candidate scan filters and pool widths
type ScannerConfig struct {
	Limit             int     `mapstructure:"limit"`
	MinPrice          float64 `mapstructure:"min_price"`
	MaxPrice          float64 `mapstructure:"max_price"`
	MaxMarketCap      float64 `mapstructure:"max_market_cap"`
	MinShortFloatPct  float64 `mapstructure:"min_short_float_pct"`
	MinIntradayVolume float64 `mapstructure:"min_intraday_volume"`
	Stage1Workers     int     `mapstructure:"stage1_workers"`
	Stage2Workers     int     `mapstructure:"stage2_workers"`
}

// StreamConfig holds tick stream and connection configuration
type StreamConfig struct {
	PriceWindow       time.Duration `mapstructure:"price_window"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
	CooldownExpiry    time.Duration `mapstructure:"cooldown_expiry"`
	RVOLTrigger       float64       `mapstructure:"rvol_trigger"`
	RVOLChangeTrigger float64       `mapstructure:"rvol_change_trigger"`
	HODChangeTrigger  float64       `mapstructure:"hod_change_trigger"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	SubscribeDelay    time.Duration `mapstructure:"subscribe_delay"`
	MinBackoff        time.Duration `mapstructure:"min_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
}

// PollerConfig holds metrics poller configuration
type PollerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	SpikeMultiple float64       `mapstructure:"spike_multiple"`
	HODBuffer     float64       `mapstructure:"hod_buffer"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// NewsConfig holds headline summarizer configuration
type NewsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// WatchlistConfig holds the priority tickers scanned first
type WatchlistConfig struct {
	Tickers []string `mapstructure:"tickers"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	MaxAlerts int    `mapstructure:"max_alerts"`
	DBPath    string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacyEnv maps environment names used by older deployments to config keys.
var legacyEnv = map[string]string{
	"finnhub.api_key":    "FINNHUB_API_KEY",
	"telegram.bot_token": "BOT_TOKEN",
	"telegram.chat_id":   "CHAT_ID",
}

// Load reads configuration from an optional file and environment variables.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GAPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "GAPWATCH_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Finnhub defaults
	v.SetDefault("finnhub.api_key", "")
	v.SetDefault("finnhub.base_url", "https://finnhub.io/api/v1")
	v.SetDefault("finnhub.stream_url", "wss://ws.finnhub.io")
	v.SetDefault("finnhub.exchange", "US")
	v.SetDefault("finnhub.timeout", "12s")
	v.SetDefault("finnhub.max_requests_per_minute", 60)
	v.SetDefault("finnhub.news_requests_per_minute", 10)
	v.SetDefault("finnhub.burst", 5)
	v.SetDefault("finnhub.rate_limit_retry_delay", "800ms")

	// Scanner defaults
	v.SetDefault("scanner.limit", 30)
	v.SetDefault("scanner.min_price", 0.30)
	v.SetDefault("scanner.max_price", 15.0)
	v.SetDefault("scanner.max_market_cap", 1_500_000_000.0)
	v.SetDefault("scanner.min_short_float_pct", 10.0)
	v.SetDefault("scanner.min_intraday_volume", 50_000.0)
	v.SetDefault("scanner.stage1_workers", 6)
	v.SetDefault("scanner.stage2_workers", 4)

	// Stream defaults
	v.SetDefault("stream.price_window", "30m")
	v.SetDefault("stream.cooldown", "5m")
	v.SetDefault("stream.cooldown_expiry", "1h")
	v.SetDefault("stream.rvol_trigger", 2.0)
	v.SetDefault("stream.rvol_change_trigger", 4.0)
	v.SetDefault("stream.hod_change_trigger", 3.0)
	v.SetDefault("stream.ping_interval", "20s")
	v.SetDefault("stream.subscribe_delay", "50ms")
	v.SetDefault("stream.min_backoff", "1s")
	v.SetDefault("stream.max_backoff", "120s")

	// Poller defaults
	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.interval", "30s")
	v.SetDefault("poller.spike_multiple", 3.0)
	v.SetDefault("poller.hod_buffer", 0.001)

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// News defaults
	v.SetDefault("news.enabled", true)
	v.SetDefault("news.cache_ttl", "5m")

	v.SetDefault("watchlist.tickers", []string{})

	// Storage defaults
	v.SetDefault("storage.max_alerts", 500)
	v.SetDefault("storage.db_path", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Finnhub config
	if c.Finnhub.APIKey == "" {
		return fmt.Errorf("finnhub.api_key is required")
	}
	if c.Finnhub.BaseURL == "" || c.Finnhub.StreamURL == "" {
		return fmt.Errorf("finnhub.base_url and finnhub.stream_url are required")
	}
	if c.Finnhub.Timeout <= 0 {
		return fmt.Errorf("finnhub.timeout must be positive")
	}
	if c.Finnhub.MaxRequestsPerMinute > 0 &&
		(c.Finnhub.NewsRequestsPerMinute < 1 || c.Finnhub.NewsRequestsPerMinute >= c.Finnhub.MaxRequestsPerMinute) {
		return fmt.Errorf("finnhub.news_requests_per_minute must be between 1 and finnhub.max_requests_per_minute - 1")
	}

	// Validate Scanner config
	if c.Scanner.Limit < 1 {
		return fmt.Errorf("scanner.limit must be at least 1")
	}
	if c.Scanner.MinPrice <= 0 || c.Scanner.MinPrice >= c.Scanner.MaxPrice {
		return fmt.Errorf("scanner.min_price must be positive and below scanner.max_price")
	}
	if c.Scanner.MaxMarketCap <= 0 {
		return fmt.Errorf("scanner.max_market_cap must be positive")
	}
	if c.Scanner.Stage1Workers < 1 || c.Scanner.Stage2Workers < 1 {
		return fmt.Errorf("scanner worker counts must be at least 1")
	}
	if c.Scanner.Stage2Workers >= c.Scanner.Stage1Workers {
		return fmt.Errorf("scanner.stage2_workers must be below scanner.stage1_workers")
	}

	// Validate Stream config
	if c.Stream.PriceWindow <= 0 {
		return fmt.Errorf("stream.price_window must be positive")
	}
	if c.Stream.Cooldown <= 0 {
		return fmt.Errorf("stream.cooldown must be positive")
	}
	if c.Stream.CooldownExpiry < c.Stream.Cooldown {
		return fmt.Errorf("stream.cooldown_expiry must not be shorter than stream.cooldown")
	}
	if c.Stream.PingInterval < time.Second {
		return fmt.Errorf("stream.ping_interval must be at least 1 second")
	}
	if c.Stream.MinBackoff <= 0 || c.Stream.MaxBackoff < c.Stream.MinBackoff {
		return fmt.Errorf("stream.max_backoff must be at least stream.min_backoff")
	}

	// Validate Poller config
	if c.Poller.Enabled {
		if c.Poller.Interval < time.Second {
			return fmt.Errorf("poller.interval must be at least 1 second")
		}
		if c.Poller.SpikeMultiple <= 0 {
			return fmt.Errorf("poller.spike_multiple must be positive")
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}

	// Validate Storage config
	if c.Storage.MaxAlerts < 1 {
		return fmt.Errorf("storage.max_alerts must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
