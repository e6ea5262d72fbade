package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Sentiment  SentimentConfig  `mapstructure:"sentiment"`
	OrderBook  OrderBookConfig  `mapstructure:"orderbook"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Fusion     FusionConfig     `mapstructure:"fusion"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Weights    WeightsConfig    `mapstructure:"weights"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	URL           string `mapstructure:"url"`
	PoolSize      int    `mapstructure:"pool_size"`
	WriteRetries  int    `mapstructure:"write_retries"`
	RetryBackoffS int    `mapstructure:"retry_backoff_s"`
	JournalPath   string `mapstructure:"journal_path"`
}

// RedisConfig contains Redis settings for the sentiment snapshot cache
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

// NATSConfig contains NATS event bus settings
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// FeedConfig contains market data feed settings
type FeedConfig struct {
	IntervalMS int      `mapstructure:"interval_ms"`
	Symbols    []string `mapstructure:"symbols"`
	Exchange   string   `mapstructure:"exchange"`
}

// SentimentConfig contains sentiment aggregator settings
type SentimentConfig struct {
	SourceTimeoutMS int      `mapstructure:"source_timeout_ms"`
	StalenessMS     int      `mapstructure:"staleness_ms"`
	CycleIntervalMS int      `mapstructure:"cycle_interval_ms"`
	MaxParallel     int      `mapstructure:"max_parallel"`
	MicroblogURL    string   `mapstructure:"microblog_url"`
	MicroblogKey    string   `mapstructure:"microblog_key"`
	MaxItems        int      `mapstructure:"max_items"`
	ForumBaseURL    string   `mapstructure:"forum_base_url"`
	Forums          []string `mapstructure:"forums"`
	NewsFeeds       []string `mapstructure:"news_feeds"`
	OnChainURL      string   `mapstructure:"onchain_url"`
}

// OrderBookConfig contains depth analyzer settings
type OrderBookConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	WSEndpoint          string  `mapstructure:"ws_endpoint"`
	DepthLevels         int     `mapstructure:"depth_levels"`
	LargeOrderThreshold float64 `mapstructure:"large_order_threshold"`
	StalenessMS         int     `mapstructure:"staleness_ms"`
}

// EngineConfig contains strategy execution engine settings
type EngineConfig struct {
	SignalChannelCapacity int    `mapstructure:"signal_channel_capacity"`
	StrategiesFile        string `mapstructure:"strategies_file"`
}

// FusionConfig contains signal fusion settings
type FusionConfig struct {
	MinSentimentConfidence     float64 `mapstructure:"min_sentiment_confidence"`
	SentimentConflictThreshold float64 `mapstructure:"sentiment_conflict_threshold"`
	MaxSentimentBoost          float64 `mapstructure:"max_sentiment_boost"`
}

// TradingConfig contains trade lifecycle settings
type TradingConfig struct {
	InitialCapital    float64   `mapstructure:"initial_capital"`
	DefaultQuantity   float64   `mapstructure:"default_quantity"`
	MinExecConfidence float64   `mapstructure:"min_exec_confidence"`
	MinExitConfidence float64   `mapstructure:"min_exit_confidence"`
	StopLossPct       float64   `mapstructure:"stop_loss_pct"`
	TakeProfitPct     float64   `mapstructure:"take_profit_pct"`
	MaxHoldS          int       `mapstructure:"max_hold_s"` // 0 disables time-based exits
	BrokerRetries     int       `mapstructure:"broker_retries"`
	BrokerRetryBaseMS int       `mapstructure:"broker_retry_base_ms"`
	DrainTimeoutS     int       `mapstructure:"drain_timeout_s"`
	Fees              FeeConfig `mapstructure:"fees"`
}

// FeeConfig contains paper broker fee/slippage simulation parameters
type FeeConfig struct {
	Maker        float64 `mapstructure:"maker"`
	Taker        float64 `mapstructure:"taker"`
	BaseSlippage float64 `mapstructure:"base_slippage"`
	MarketImpact float64 `mapstructure:"market_impact"`
	MaxSlippage  float64 `mapstructure:"max_slippage"`
}

// WeightsConfig contains adaptive weights controller settings
type WeightsConfig struct {
	UpdateIntervalS int `mapstructure:"update_interval_s"`
	LookbackHours   int `mapstructure:"lookback_hours"`
}

// AlertsConfig contains alert sink settings
type AlertsConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("FLUXTRADER")

	// Bare env names from the deployment contract map onto viper keys.
	bindLegacyEnv(v)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindLegacyEnv binds the documented flat environment variables
func bindLegacyEnv(v *viper.Viper) {
	bindings := map[string]string{
		"feed.interval_ms":                 "FEED_INTERVAL_MS",
		"sentiment.source_timeout_ms":      "SOURCE_TIMEOUT_MS",
		"sentiment.staleness_ms":           "SENTIMENT_STALENESS_MS",
		"engine.signal_channel_capacity":   "SIGNAL_CHANNEL_CAPACITY",
		"trading.broker_retries":           "BROKER_RETRY_ATTEMPTS",
		"weights.update_interval_s":        "WEIGHTS_UPDATE_INTERVAL_S",
		"trading.min_exec_confidence":      "MIN_EXEC_CONFIDENCE",
		"trading.stop_loss_pct":            "STOP_LOSS_PCT",
		"trading.take_profit_pct":          "TAKE_PROFIT_PCT",
		"orderbook.enabled":                "ENABLE_ORDER_BOOK",
		"database.url":                     "DATABASE_URL",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "fluxtrader")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Database defaults
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.write_retries", 10)
	v.SetDefault("database.retry_backoff_s", 1)
	v.SetDefault("database.journal_path", "./data/journal")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", true)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)

	// Feed defaults
	v.SetDefault("feed.interval_ms", 30000)
	v.SetDefault("feed.symbols", []string{"BTC", "ETH"})
	v.SetDefault("feed.exchange", "binance")

	// Sentiment defaults
	v.SetDefault("sentiment.source_timeout_ms", 2000)
	v.SetDefault("sentiment.staleness_ms", 30000)
	v.SetDefault("sentiment.cycle_interval_ms", 30000)
	v.SetDefault("sentiment.max_parallel", 8)
	v.SetDefault("sentiment.max_items", 100)

	// Order book defaults
	v.SetDefault("orderbook.enabled", true)
	v.SetDefault("orderbook.depth_levels", 20)
	v.SetDefault("orderbook.large_order_threshold", 10.0)
	v.SetDefault("orderbook.staleness_ms", 5000)

	// Engine defaults
	v.SetDefault("engine.signal_channel_capacity", 1024)
	v.SetDefault("engine.strategies_file", "./configs/strategies.yaml")

	// Fusion defaults
	v.SetDefault("fusion.min_sentiment_confidence", 0.4)
	v.SetDefault("fusion.sentiment_conflict_threshold", 0.3)
	v.SetDefault("fusion.max_sentiment_boost", 0.2)

	// Trading defaults
	v.SetDefault("trading.initial_capital", 10000.0)
	v.SetDefault("trading.default_quantity", 0.01)
	v.SetDefault("trading.min_exec_confidence", 0.6)
	v.SetDefault("trading.min_exit_confidence", 0.6)
	v.SetDefault("trading.stop_loss_pct", 0.02)
	v.SetDefault("trading.take_profit_pct", 0.05)
	v.SetDefault("trading.max_hold_s", 0)
	v.SetDefault("trading.broker_retries", 3)
	v.SetDefault("trading.broker_retry_base_ms", 200)
	v.SetDefault("trading.drain_timeout_s", 10)

	// Paper broker fee defaults (Binance-like structure)
	v.SetDefault("trading.fees.maker", 0.001)
	v.SetDefault("trading.fees.taker", 0.001)
	v.SetDefault("trading.fees.base_slippage", 0.0005)
	v.SetDefault("trading.fees.market_impact", 0.0001)
	v.SetDefault("trading.fees.max_slippage", 0.003)

	// Weights defaults
	v.SetDefault("weights.update_interval_s", 3600)
	v.SetDefault("weights.lookback_hours", 24)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate checks configuration consistency at startup
func (c *Config) Validate() error {
	if c.Feed.IntervalMS <= 0 {
		return fmt.Errorf("feed.interval_ms must be positive, got %d", c.Feed.IntervalMS)
	}
	if len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("feed.symbols must not be empty")
	}
	if c.Sentiment.SourceTimeoutMS <= 0 {
		return fmt.Errorf("sentiment.source_timeout_ms must be positive, got %d", c.Sentiment.SourceTimeoutMS)
	}
	if c.Sentiment.MaxParallel <= 0 {
		return fmt.Errorf("sentiment.max_parallel must be positive, got %d", c.Sentiment.MaxParallel)
	}
	if c.Engine.SignalChannelCapacity <= 0 {
		return fmt.Errorf("engine.signal_channel_capacity must be positive, got %d", c.Engine.SignalChannelCapacity)
	}
	if c.Fusion.MinSentimentConfidence < 0 || c.Fusion.MinSentimentConfidence > 1 {
		return fmt.Errorf("fusion.min_sentiment_confidence must be in [0,1], got %f", c.Fusion.MinSentimentConfidence)
	}
	if c.Trading.MinExecConfidence < 0 || c.Trading.MinExecConfidence > 1 {
		return fmt.Errorf("trading.min_exec_confidence must be in [0,1], got %f", c.Trading.MinExecConfidence)
	}
	if c.Trading.StopLossPct < 0 || c.Trading.TakeProfitPct < 0 {
		return fmt.Errorf("stop loss and take profit percentages must be non-negative")
	}
	if c.Trading.BrokerRetries < 0 {
		return fmt.Errorf("trading.broker_retries must be non-negative, got %d", c.Trading.BrokerRetries)
	}
	if c.Weights.UpdateIntervalS <= 0 {
		return fmt.Errorf("weights.update_interval_s must be positive, got %d", c.Weights.UpdateIntervalS)
	}
	return nil
}

// FeedInterval returns the feed poll cadence as a time.Duration
func (c *FeedConfig) FeedInterval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// SourceTimeout returns the per-fetcher deadline as a time.Duration
func (c *SentimentConfig) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutMS) * time.Millisecond
}

// Staleness returns the maximum sentiment age as a time.Duration
func (c *SentimentConfig) Staleness() time.Duration {
	return time.Duration(c.StalenessMS) * time.Millisecond
}

// DrainTimeout returns the shutdown drain window as a time.Duration
func (c *TradingConfig) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutS) * time.Second
}

// UpdateInterval returns the weights update cadence as a time.Duration
func (c *WeightsConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalS) * time.Second
}
