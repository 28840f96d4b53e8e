// Package config defines the configuration for the weather ingestion
// service. Configuration is loaded once at process initialization (Lambda
// cold start) and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"weatheringest/internal/types"
)

// SecretString is an alias for types.SecretString so callers of this package
// do not need to import types just to read the database URL.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subset they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"weather-ingest"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Database      DatabaseConfig
	AWS           AWSConfig
	Ingest        IngestConfig
	Server        ServerConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// DatabaseConfig holds the relational store connection and pool settings.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Table is the observation table name. It is quoted as an identifier,
	// never interpolated raw.
	Table string `envconfig:"WEATHER_TABLE" default:"weather_data" validate:"required,sqlident"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"4" validate:"min=1"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"0" validate:"min=0"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	ConnectTimeout  time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"10s" validate:"gt=0"`

	// Session open is guarded by a circuit breaker so a warm Lambda stops
	// hammering an unreachable database.
	BreakerMaxFailures uint32        `envconfig:"DB_BREAKER_MAX_FAILURES" default:"3" validate:"min=1"`
	BreakerOpenTimeout time.Duration `envconfig:"DB_BREAKER_OPEN_TIMEOUT" default:"30s" validate:"gt=0"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// SourceBucket, when set, is the only bucket events are accepted from.
	SourceBucket string `envconfig:"SOURCE_BUCKET"`

	// SkippedRowsQueue receives one message per skipped row when set.
	SkippedRowsQueue string `envconfig:"SQS_SKIPPED_ROWS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	ParseWorkers       int   `envconfig:"INGEST_PARSE_WORKERS" default:"1" validate:"min=1,max=64"`
	MaxObjectBytes     int64 `envconfig:"INGEST_MAX_OBJECT_BYTES" default:"67108864" validate:"min=1"`
	DedupeByDate       bool  `envconfig:"INGEST_DEDUPE_BY_DATE" default:"false"`
	MaxSkippedInReport int   `envconfig:"INGEST_MAX_SKIPPED_IN_REPORT" default:"100" validate:"min=0"`
}

// ServerConfig holds the read API settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	QueryMaxLimit   int           `envconfig:"QUERY_MAX_LIMIT" default:"5000" validate:"min=1"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s" validate:"gt=0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"WeatherIngest"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
