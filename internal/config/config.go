// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or out of range, Load
// returns an error and the process exits.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration for the status service.
type Config struct {
	HTTPPort string `env:"STATUS_HTTP_PORT" envDefault:"8083"`
	GRPCPort string `env:"STATUS_GRPC_PORT" envDefault:"9083"`

	// Exactly one backend is used; DATABASE_URL wins when both are set.
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"STATUS_SQLITE_PATH"`

	// RedisURL is optional. Without it events go to the log.
	RedisURL string `env:"REDIS_URL"`

	AckReminderIntervalHours int `env:"ACK_REMINDER_INTERVAL_HOURS" envDefault:"24"`
	AckReminderMinAgeHours   int `env:"ACK_REMINDER_MIN_AGE_HOURS"  envDefault:"48"`
	BulkEngageConcurrency    int `env:"BULK_ENGAGE_CONCURRENCY"     envDefault:"8"`

	OTelEndpoint string `env:"OTEL_EXPORTER_ENDPOINT"`
}

// UsePostgres reports whether the PostgreSQL store is configured.
func (c *Config) UsePostgres() bool { return c.DatabaseURL != "" }

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.SQLitePath = strings.TrimSpace(cfg.SQLitePath)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		errs = append(errs, errors.New("DATABASE_URL or STATUS_SQLITE_PATH is required"))
	}
	if c.HTTPPort == "" {
		errs = append(errs, errors.New("STATUS_HTTP_PORT must not be empty"))
	}
	if c.GRPCPort == "" {
		errs = append(errs, errors.New("STATUS_GRPC_PORT must not be empty"))
	}
	if c.AckReminderIntervalHours < 1 {
		errs = append(errs, fmt.Errorf("ACK_REMINDER_INTERVAL_HOURS must be >= 1, got %d", c.AckReminderIntervalHours))
	}
	if c.AckReminderMinAgeHours < 1 {
		errs = append(errs, fmt.Errorf("ACK_REMINDER_MIN_AGE_HOURS must be >= 1, got %d", c.AckReminderMinAgeHours))
	}
	if c.BulkEngageConcurrency < 1 {
		errs = append(errs, fmt.Errorf("BULK_ENGAGE_CONCURRENCY must be >= 1, got %d", c.BulkEngageConcurrency))
	}
	return errors.Join(errs...)
}
