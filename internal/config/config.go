// internal/config/config.go

// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings. Loaded once at startup and treated
// as immutable. Defaults keep the engine runnable against a local
// SQLite file with no environment at all.
type Config struct {
	// StorageDriver selects the database/sql driver: "sqlite" for a
	// local file (default) or "postgres" for lib/pq.
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	StorageDSN    string `env:"STORAGE_DSN" envDefault:"libralend.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"`

	ServerPort string `env:"PORT" envDefault:"8080"`

	// Mutating-endpoint rate limit, requests per minute with a burst.
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	RateLimitBurst     int `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// OTLPEndpoint enables trace export when set; empty disables it.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load parses the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
