package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 5 * time.Second

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultFeedInterval       = 5 * time.Second
	DefaultFeedSink           = "postgres"
	DefaultAttemptThreshold   = 3
	DefaultMaxRestartAttempts = 5
	DefaultTimeoutMultiplier  = 2

	DefaultFiatCurrency       = "USD"
	DefaultCryptoCurrency     = "BTC"
	DefaultMaxTradePercentage = 0.4
	DefaultDispatchBuffer     = 100

	DefaultTickerInterval        = 60 * time.Second
	DefaultUnresponsiveThreshold = 2 * time.Minute
	DefaultAbandonThreshold      = 4 * time.Minute
	DefaultPredictionCycles      = 5
	DefaultStatusInterval        = 6 * time.Hour

	DefaultNotifyTimeout = 10 * time.Second

	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"
)

func (c *Config) applyDefaults() {
	// Exchange defaults
	if c.Exchange.ReadTimeout == 0 {
		c.Exchange.ReadTimeout = DefaultReadTimeout
	}
	if c.Exchange.WriteTimeout == 0 {
		c.Exchange.WriteTimeout = DefaultWriteTimeout
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Feed defaults
	if c.Feed.Interval == 0 {
		c.Feed.Interval = DefaultFeedInterval
	}
	if c.Feed.Sink == "" {
		c.Feed.Sink = DefaultFeedSink
	}
	if c.Feed.AttemptThreshold == 0 {
		c.Feed.AttemptThreshold = DefaultAttemptThreshold
	}
	if c.Feed.MaxRestartAttempts == 0 {
		c.Feed.MaxRestartAttempts = DefaultMaxRestartAttempts
	}
	if c.Feed.TimeoutMultiplier == 0 {
		c.Feed.TimeoutMultiplier = DefaultTimeoutMultiplier
	}

	// Trading defaults
	if c.Trading.FiatCurrency == "" {
		c.Trading.FiatCurrency = DefaultFiatCurrency
	}
	if c.Trading.CryptoCurrency == "" {
		c.Trading.CryptoCurrency = DefaultCryptoCurrency
	}
	if c.Trading.MaxTradePercentage == 0 {
		c.Trading.MaxTradePercentage = DefaultMaxTradePercentage
	}
	if c.Trading.DispatchBuffer == 0 {
		c.Trading.DispatchBuffer = DefaultDispatchBuffer
	}

	// Monitor defaults
	if c.Monitor.TickerInterval == 0 {
		c.Monitor.TickerInterval = DefaultTickerInterval
	}
	if c.Monitor.UnresponsiveThreshold == 0 {
		c.Monitor.UnresponsiveThreshold = DefaultUnresponsiveThreshold
	}
	if c.Monitor.AbandonThreshold == 0 {
		c.Monitor.AbandonThreshold = DefaultAbandonThreshold
	}
	if c.Monitor.PredictionCycles == 0 {
		c.Monitor.PredictionCycles = DefaultPredictionCycles
	}
	if c.Monitor.StatusInterval == 0 {
		c.Monitor.StatusInterval = DefaultStatusInterval
	}

	// Notify defaults
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = DefaultNotifyTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
