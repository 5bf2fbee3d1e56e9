// Package config loads the ledger service configuration from YAML with
// environment overrides for deploy-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	Listen        string         `yaml:"listen"`
	PostgresDSN   string         `yaml:"postgres_dsn"`
	ClickHouseDSN string         `yaml:"clickhouse_dsn"`
	UseMemory     bool           `yaml:"use_memory"`
	JournalDir    string         `yaml:"journal_dir"`
	Chain         ChainConfig    `yaml:"chain"`
	Epoch         EpochConfig    `yaml:"epoch"`
	Dividend      DividendConfig `yaml:"dividend"`
	Feed          FeedConfig     `yaml:"feed"`
}

// ChainConfig configures the collaborator JSON-RPC client.
type ChainConfig struct {
	Endpoint   string `yaml:"endpoint"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxRetries int    `yaml:"max_retries"`
}

// EpochConfig configures the period checkpointer.
type EpochConfig struct {
	SelfID        string `yaml:"self_id"`
	Controller    string `yaml:"controller"`
	IntervalSec   int64  `yaml:"interval_sec"`
	MaxSteps      int    `yaml:"max_steps"`
	CheckpointSec int    `yaml:"checkpoint_sec"`
}

// DividendConfig configures payout distribution.
type DividendConfig struct {
	NativeCurrency string `yaml:"native_currency"` // empty uses the built-in native asset id
}

// FeedConfig configures the websocket event feed.
type FeedConfig struct {
	Enabled    bool `yaml:"enabled"`
	SendBuffer int  `yaml:"send_buffer"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:     ":8080",
		JournalDir: "journal",
		Chain: ChainConfig{
			TimeoutSec: 30,
			MaxRetries: 3,
		},
		Epoch: EpochConfig{
			IntervalSec:   7 * 24 * 3600,
			MaxSteps:      500,
			CheckpointSec: 60,
		},
		Feed: FeedConfig{
			Enabled:    true,
			SendBuffer: 64,
		},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig
// merged with the file and environment overrides; an empty path skips the
// file and uses defaults plus environment alone.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// applyEnv overlays environment variables onto the config. Only values
// that vary per deployment are exposed this way.
func (c *Config) applyEnv() {
	if v := os.Getenv("LEDGER_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.ClickHouseDSN = v
	}
	if v := os.Getenv("LEDGER_USE_MEMORY"); v == "1" || v == "true" {
		c.UseMemory = true
	}
	if v := os.Getenv("JOURNAL_DIR"); v != "" {
		c.JournalDir = v
	}
	if v := os.Getenv("CHAIN_RPC_ENDPOINT"); v != "" {
		c.Chain.Endpoint = v
	}
	if v := os.Getenv("LEDGER_SELF_ID"); v != "" {
		c.Epoch.SelfID = v
	}
	if v := os.Getenv("LEDGER_CONTROLLER"); v != "" {
		c.Epoch.Controller = v
	}
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if !c.UseMemory && (c.PostgresDSN == "" || c.ClickHouseDSN == "") {
		return fmt.Errorf("postgres_dsn and clickhouse_dsn are required (set use_memory for in-memory storage)")
	}
	if c.Chain.Endpoint == "" {
		return fmt.Errorf("chain.endpoint is required")
	}
	if c.Chain.TimeoutSec <= 0 {
		return fmt.Errorf("chain.timeout_sec must be > 0")
	}
	if c.Chain.MaxRetries < 0 {
		return fmt.Errorf("chain.max_retries must be >= 0")
	}
	if c.Epoch.SelfID == "" {
		return fmt.Errorf("epoch.self_id is required")
	}
	if c.Epoch.Controller == "" {
		return fmt.Errorf("epoch.controller is required")
	}
	if c.Epoch.IntervalSec <= 0 {
		return fmt.Errorf("epoch.interval_sec must be > 0")
	}
	if c.Epoch.MaxSteps <= 0 {
		return fmt.Errorf("epoch.max_steps must be > 0")
	}
	if c.Epoch.CheckpointSec <= 0 {
		return fmt.Errorf("epoch.checkpoint_sec must be > 0")
	}
	if c.Feed.Enabled && c.Feed.SendBuffer <= 0 {
		return fmt.Errorf("feed.send_buffer must be > 0")
	}
	return nil
}

// Timeout returns the chain client timeout as a duration.
func (c *ChainConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// CheckpointEvery returns the checkpoint scheduler cadence as a duration.
func (e *EpochConfig) CheckpointEvery() time.Duration {
	return time.Duration(e.CheckpointSec) * time.Second
}
