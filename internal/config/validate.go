package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Exchange.WSURL == "" {
		return errors.New("exchange.ws_url is required")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Feed.Symbol == "" {
		return errors.New("feed.symbol is required")
	}
	if c.Feed.Sink != "postgres" && c.Feed.Sink != "csv" {
		return fmt.Errorf("feed.sink must be \"postgres\" or \"csv\", got %q", c.Feed.Sink)
	}
	if c.Feed.Sink == "csv" && c.Feed.CSVPath == "" {
		return errors.New("feed.csv_path is required when feed.sink is \"csv\"")
	}
	if c.Feed.AttemptThreshold < 1 {
		return errors.New("feed.attempt_threshold must be >= 1")
	}
	if c.Feed.MaxRestartAttempts < 1 {
		return errors.New("feed.max_restart_attempts must be >= 1")
	}
	if c.Feed.TimeoutMultiplier < 1 {
		return errors.New("feed.timeout_multiplier must be >= 1")
	}

	if c.Trading.Symbol == "" {
		return errors.New("trading.symbol is required")
	}
	if c.Trading.MaxTradePercentage <= 0 || c.Trading.MaxTradePercentage > 1 {
		return fmt.Errorf("trading.max_trade_percentage must be in (0, 1], got %v", c.Trading.MaxTradePercentage)
	}
	if c.Trading.DispatchBuffer < 1 {
		return errors.New("trading.dispatch_buffer must be >= 1")
	}

	if c.Monitor.AbandonThreshold < c.Monitor.UnresponsiveThreshold {
		return errors.New("monitor.abandon_threshold must be >= monitor.unresponsive_threshold")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
