package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the complete client configuration
type Config struct {
	Client        ClientConfig        `mapstructure:"client"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Realtime      RealtimeConfig      `mapstructure:"realtime"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	ErrorTracking ErrorTrackingConfig `mapstructure:"error_tracking"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// ClientConfig holds settings of the HTTP request layer
type ClientConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Language       string        `mapstructure:"language"`
	Timeout        time.Duration `mapstructure:"timeout"`          // per request, not applied to the event stream
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`   // 0 disables client side throttling
	RateLimitBurst int           `mapstructure:"rate_limit_burst"` // only used when rate_limit_rps > 0
}

// AuthConfig holds authorization lifecycle settings
type AuthConfig struct {
	RefreshThreshold time.Duration `mapstructure:"refresh_threshold"`

	// Optional credentials used by cmd/pbwatch to log in at start-up.
	Collection string `mapstructure:"collection"` // "_superusers" or an auth collection
	Identity   string `mapstructure:"identity"`
	Password   string `mapstructure:"password"`
}

// RealtimeConfig holds settings of the realtime event stream
type RealtimeConfig struct {
	Path        string        `mapstructure:"path"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	Backoff     BackoffConfig `mapstructure:"backoff"`
}

// BackoffConfig describes the reconnect policy of the event stream
type BackoffConfig struct {
	InitialInterval     time.Duration `mapstructure:"initial_interval"`
	MaxInterval         time.Duration `mapstructure:"max_interval"`
	Multiplier          float64       `mapstructure:"multiplier"`
	RandomizationFactor float64       `mapstructure:"randomization_factor"`
	MaxElapsedTime      time.Duration `mapstructure:"max_elapsed_time"` // 0 retries forever
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Dev  bool   `mapstructure:"dev"`
	Path string `mapstructure:"path"`
}

// ErrorTrackingConfig holds error tracking configuration
type ErrorTrackingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Provider    string  `mapstructure:"provider"` // sentry, memory, noop
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	Release     string  `mapstructure:"release"`
	Debug       bool    `mapstructure:"debug"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Endpoint       string `mapstructure:"endpoint"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Addr      string `mapstructure:"addr"` // cmd/pbwatch serves /metrics here when set
}

// Validate rejects settings the client cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Client.BaseURL == "" {
		errs = append(errs, errors.New("client.base_url is required"))
	}
	if c.Client.Timeout < 0 {
		errs = append(errs, errors.New("client.timeout must not be negative"))
	}
	if c.Client.RateLimitRPS < 0 {
		errs = append(errs, errors.New("client.rate_limit_rps must not be negative"))
	}
	if c.Auth.RefreshThreshold < 0 {
		errs = append(errs, errors.New("auth.refresh_threshold must not be negative"))
	}
	if c.Auth.Identity != "" && c.Auth.Password == "" {
		errs = append(errs, errors.New("auth.password is required when auth.identity is set"))
	}
	if b := c.Realtime.Backoff; b.Multiplier != 0 && b.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("realtime.backoff.multiplier must be at least 1, got %v", b.Multiplier))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
