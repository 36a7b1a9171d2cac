package config

import "time"

// Config is the root configuration for the trading pipeline.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Database DBConfig       `yaml:"database"`
	Feed     FeedConfig     `yaml:"feed"`
	Trading  TradingConfig  `yaml:"trading"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Notify   NotifyConfig   `yaml:"notify"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this pipeline instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ExchangeConfig holds exchange API settings.
type ExchangeConfig struct {
	WSURL        string        `yaml:"ws_url"`
	APIKey       string        `yaml:"api_key"`
	APISecret    string        `yaml:"api_secret"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DBConfig holds the Postgres connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// FeedConfig holds market-data feed settings.
type FeedConfig struct {
	Symbol             string        `yaml:"symbol"`               // Tick subscription pair
	Interval           time.Duration `yaml:"interval"`             // Minimum spacing between persisted ticks
	Sink               string        `yaml:"sink"`                 // "postgres" or "csv"
	CSVPath            string        `yaml:"csv_path"`             // Output path for the csv sink
	AttemptThreshold   int           `yaml:"attempt_threshold"`    // Receive retries before a reconnect
	MaxRestartAttempts int           `yaml:"max_restart_attempts"` // Reconnects before the feed aborts
	TimeoutMultiplier  int           `yaml:"timeout_multiplier"`   // interval * multiplier = staleness cutoff
}

// TradingConfig holds order-execution settings.
type TradingConfig struct {
	Symbol             string  `yaml:"symbol"`               // Trading pair for submitted orders
	FiatCurrency       string  `yaml:"fiat_currency"`        // e.g. "USD"
	CryptoCurrency     string  `yaml:"crypto_currency"`      // e.g. "BTC"
	MaxTradePercentage float64 `yaml:"max_trade_percentage"` // Fraction of balance risked at full confidence
	DispatchBuffer     int     `yaml:"dispatch_buffer"`      // In-process order queue capacity
}

// MonitorConfig holds watchdog settings.
type MonitorConfig struct {
	TickerInterval        time.Duration `yaml:"ticker_interval"`         // Expected tick cadence being monitored
	UnresponsiveThreshold time.Duration `yaml:"unresponsive_threshold"`  // Silence before an unresponsive alert
	AbandonThreshold      time.Duration `yaml:"abandon_threshold"`       // Silence before a presumed-down alert
	PredictionCycles      int           `yaml:"prediction_cycles"`       // Scales the signal pipeline's thresholds
	StatusInterval        time.Duration `yaml:"status_interval"`         // Cadence of status summaries
}

// NotifyConfig holds webhook notification settings.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
