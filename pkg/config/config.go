// Package config provides the unified configuration system for querylens.
// It defines a single Config structure covering the engine connection,
// the persistence store, collection bounds, and reliability tunables.
//
// The configuration is organized into logical sections:
//   - Engine: base URL, credentials or pre-issued token, project id, TLS
//   - Database: PostgreSQL connection for the persistence store
//   - Collection: per-pass fetch bounds and the timer interval
//   - Reliability: retry attempts, backoff, rate limiting
//   - Timeouts: per-call timeout, job polling cadence and deadline
//   - Observability: log level and metrics toggle
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Engine.URL = "https://app.dremio.cloud"
//	cfg.Engine.ProjectID = "4fe0…"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the single configuration structure the collector uses.
type Config struct {
	// Engine holds the remote query engine connection settings
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// Database holds the persistence store settings
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Collection controls per-pass fetch bounds
	Collection CollectionConfig `yaml:"collection" json:"collection"`

	// Reliability settings for error handling and resilience
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Timeouts define request and job-polling durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Observability settings for logging and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// EngineConfig describes how to reach and authenticate against the
// remote engine. Either Username/Password or a pre-issued Token must be
// set; ProjectID is required for the hosted (cloud) dialect.
type EngineConfig struct {
	// URL is the engine base URL (e.g. http://localhost:9047 or
	// https://api.dremio.cloud)
	URL string `yaml:"url" json:"url"`
	// Username for login-based authentication
	Username string `yaml:"username" json:"username"`
	// Password for login-based authentication
	Password string `yaml:"password" json:"password"`
	// Token is an optional pre-issued personal access token. When set,
	// the login flow is skipped and the token never expires client-side.
	Token string `yaml:"token" json:"token"`
	// ProjectID scopes requests for the hosted dialect
	ProjectID string `yaml:"project_id" json:"project_id"`
	// VerifySSL controls TLS certificate verification
	VerifySSL bool `yaml:"verify_ssl" json:"verify_ssl"`
}

// DatabaseConfig holds the persistence store settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	URL string `yaml:"url" json:"url"`
	// MaxConns caps the connection pool size
	MaxConns int32 `yaml:"max_conns" json:"max_conns"`
}

// CollectionConfig bounds the work done in one pass. The profile and
// dataset bounds mirror the provider-side page sizes and keep the number
// of per-item fetches per pass predictable.
type CollectionConfig struct {
	// QueryLimit is the history page size per pass
	QueryLimit int `yaml:"query_limit" json:"query_limit"`
	// ProfileLimit bounds profile fetches to the most recent N queries
	// of the batch fetched this pass
	ProfileLimit int `yaml:"profile_limit" json:"profile_limit"`
	// DatasetLimit bounds dataset upserts per pass
	DatasetLimit int `yaml:"dataset_limit" json:"dataset_limit"`
	// Interval between passes when running on a timer (0 = single pass)
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// ReliabilityConfig contains retry and rate-limit settings.
type ReliabilityConfig struct {
	// RetryAttempts is the total attempt budget for retryable failures
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial backoff delay
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// MaxRetryDelay caps the exponential backoff
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// RateLimitPerSec limits engine requests per second (0 = unlimited)
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
}

// TimeoutConfig contains all timeout-related settings.
type TimeoutConfig struct {
	// Request is the overall per-call timeout, independent of retries
	Request time.Duration `yaml:"request" json:"request"`
	// PollInterval is the sleep between job status polls
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// JobDeadline is the wall-clock limit for one polled job
	JobDeadline time.Duration `yaml:"job_deadline" json:"job_deadline"`
}

// ObservabilityConfig contains logging and metrics settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// EnableMetrics activates the Prometheus collectors
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// MetricsAddr is the listen address for the Prometheus endpoint
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	// Development switches the logger to console encoding
	Development bool `yaml:"development" json:"development"`
}

// Default returns a Config with production-ready defaults matching the
// provider's documented limits.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			URL:       "http://localhost:9047",
			VerifySSL: true,
		},
		Database: DatabaseConfig{
			URL:      "postgres://localhost/querylens",
			MaxConns: 10,
		},
		Collection: CollectionConfig{
			QueryLimit:   1000,
			ProfileLimit: 100,
			DatasetLimit: 100,
			Interval:     30 * time.Minute,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts: 3,
			RetryDelay:    time.Second,
			MaxRetryDelay: 30 * time.Second,
		},
		Timeouts: TimeoutConfig{
			Request:      30 * time.Second,
			PollInterval: 500 * time.Millisecond,
			JobDeadline:  30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			EnableMetrics: true,
			MetricsAddr:   "127.0.0.1:9091",
		},
	}
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	if c.Engine.URL == "" {
		return fmt.Errorf("engine.url is required")
	}
	if c.Engine.Token == "" && c.Engine.Username == "" {
		return fmt.Errorf("either engine.token or engine.username is required")
	}
	if c.IsCloud() && c.Engine.ProjectID == "" {
		return fmt.Errorf("engine.project_id is required for a cloud engine URL")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Collection.QueryLimit <= 0 {
		return fmt.Errorf("collection.query_limit must be positive")
	}
	if c.Collection.ProfileLimit < 0 {
		return fmt.Errorf("collection.profile_limit cannot be negative")
	}
	if c.Collection.DatasetLimit <= 0 {
		return fmt.Errorf("collection.dataset_limit must be positive")
	}
	if c.Reliability.RetryAttempts <= 0 {
		return fmt.Errorf("reliability.retry_attempts must be positive")
	}
	if c.Timeouts.Request <= 0 {
		return fmt.Errorf("timeouts.request must be positive")
	}
	if c.Timeouts.PollInterval <= 0 {
		return fmt.Errorf("timeouts.poll_interval must be positive")
	}
	if c.Timeouts.JobDeadline <= 0 {
		return fmt.Errorf("timeouts.job_deadline must be positive")
	}
	return nil
}

// IsCloud reports whether the engine URL points at the hosted variant.
// The hosted dialect is only active when a project id is also present;
// DialectRouter makes the final call.
func (c *Config) IsCloud() bool {
	return strings.Contains(c.Engine.URL, "dremio.cloud")
}
