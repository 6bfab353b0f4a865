// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration, populated from LEDGER_*
// environment variables.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"LEDGER_ADDR" envDefault:":8080"`

	// DBDSN is the SQLite database path. ":memory:" runs fully in memory.
	DBDSN string `env:"LEDGER_DB_DSN" envDefault:"ledger.db"`

	// SnapshotInterval is how many events an aggregate accumulates
	// between snapshots. Zero disables snapshotting.
	SnapshotInterval int64 `env:"LEDGER_SNAPSHOT_INTERVAL" envDefault:"50"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LEDGER_LOG_LEVEL" envDefault:"info"`

	// NATSURL is the NATS server to publish committed events to.
	// Empty disables publication unless NATSEmbedded is set.
	NATSURL string `env:"LEDGER_NATS_URL"`

	// NATSEmbedded runs an in-process NATS server and publishes to it.
	NATSEmbedded bool `env:"LEDGER_NATS_EMBEDDED" envDefault:"false"`

	// Environment tags telemetry (development, staging, production).
	Environment string `env:"LEDGER_ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.SnapshotInterval < 0 {
		return nil, fmt.Errorf("LEDGER_SNAPSHOT_INTERVAL must not be negative")
	}
	return &cfg, nil
}

// SlogLevel maps the configured level name to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
