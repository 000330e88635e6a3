// Package config defines the service configuration. Configuration is loaded
// once at process startup and is immutable thereafter, following 12-Factor
// principles: values come from the OS environment, optionally seeded by a
// .env file for local development. Any missing required value or invalid
// format fails the process immediately on boot.
package config

import (
	"time"

	"timesaver/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to keep sensitive values out of logs.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"timesaver"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server    ServerConfig
	Database  DatabaseConfig
	Source    SourceConfig
	Ingest    IngestConfig
	Migration MigrationConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// SourceConfig holds the upstream task-source endpoint and credentials.
type SourceConfig struct {
	BaseURL   string        `envconfig:"TASK_SOURCE_URL" validate:"required,url"`
	Token     SecretString  `envconfig:"TASK_SOURCE_TOKEN"`
	Timeout   time.Duration `envconfig:"TASK_SOURCE_TIMEOUT" default:"30s"`
	UserAgent string        `envconfig:"TASK_SOURCE_USER_AGENT" default:"TimeSaver/1.0"`
}

// IngestConfig tunes the refresh pipeline.
type IngestConfig struct {
	// FallbackTeam is substituted as the team name when a task's
	// classification has no team dimension (single-level shape).
	FallbackTeam string `envconfig:"FALLBACK_TEAM" default:"Global"`

	// DropInvalidTimestamp controls whether rows whose source task has an
	// unparsable creation time are dropped (true) or inserted with a zero
	// timestamp (false).
	DropInvalidTimestamp bool `envconfig:"DROP_INVALID_TIMESTAMP" default:"true"`

	// RefreshInterval is the scheduled full-refresh cadence.
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"5m"`
}

// MigrationConfig holds the backward-migration classification used by the
// GET migration trigger when no request body is supplied. The value is a
// JSON array of classification entries keyed by entityRef.
type MigrationConfig struct {
	BackwardClassification string `envconfig:"BACKWARD_CLASSIFICATION"`
}
