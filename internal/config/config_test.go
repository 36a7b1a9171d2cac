package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
instance:
  id: test-pipeline
exchange:
  ws_url: wss://api.example.com/ws
database:
  host: localhost
  name: test_db
  user: testuser
  password: testpass
feed:
  symbol: BTCUSD
trading:
  symbol: BTCUSD
`

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempFile(t, minimalYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-pipeline" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-pipeline")
	}
	if cfg.Exchange.WSURL != "wss://api.example.com/ws" {
		t.Errorf("Exchange.WSURL = %q", cfg.Exchange.WSURL)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want localhost", cfg.Database.Host)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-pipeline
database:
  host: localhost
  name: test_db
  user: testuser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want secret123", cfg.Database.Password)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, minimalYAML)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Feed.Sink != "postgres" {
		t.Errorf("Feed.Sink = %q, want postgres", cfg.Feed.Sink)
	}
	if cfg.Feed.MaxRestartAttempts != 5 {
		t.Errorf("Feed.MaxRestartAttempts = %d, want 5", cfg.Feed.MaxRestartAttempts)
	}
	if cfg.Trading.MaxTradePercentage != DefaultMaxTradePercentage {
		t.Errorf("Trading.MaxTradePercentage = %v, want %v", cfg.Trading.MaxTradePercentage, DefaultMaxTradePercentage)
	}
	if cfg.Monitor.StatusInterval != 6*time.Hour {
		t.Errorf("Monitor.StatusInterval = %v, want 6h", cfg.Monitor.StatusInterval)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, minimalYAML)

	if _, err := LoadAndValidate(path); err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing instance id", func(c *Config) { c.Instance.ID = "" }},
		{"missing ws url", func(c *Config) { c.Exchange.WSURL = "" }},
		{"missing db host", func(c *Config) { c.Database.Host = "" }},
		{"bad sink", func(c *Config) { c.Feed.Sink = "sqlite" }},
		{"csv sink without path", func(c *Config) { c.Feed.Sink = "csv"; c.Feed.CSVPath = "" }},
		{"trade percentage above one", func(c *Config) { c.Trading.MaxTradePercentage = 1.5 }},
		{"abandon below unresponsive", func(c *Config) {
			c.Monitor.UnresponsiveThreshold = 5 * time.Minute
			c.Monitor.AbandonThreshold = time.Minute
		}},
		{"bad metrics port", func(c *Config) { c.Metrics.Port = 70000 }},
	}

	for _, tt := range tests {
		path := writeTempFile(t, minimalYAML)
		cfg, err := LoadWithDefaults(path)
		if err != nil {
			t.Fatalf("%s: LoadWithDefaults failed: %v", tt.name, err)
		}
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate() expected error, got nil", tt.name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of missing file expected error")
	}
}
