package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Manager layers the config file, POCKETBASE_* environment variables and
// built-in defaults on top of each other through one viper instance.
type Manager struct {
	v *viper.Viper
}

// Option is a functional option for configuring the Manager
type Option func(*Manager)

// WithConfigFile reads exactly this file instead of searching for pocketbase.yaml
func WithConfigFile(path string) Option {
	return func(m *Manager) { m.v.SetConfigFile(path) }
}

// WithConfigPath adds a directory to the pocketbase.yaml search path
func WithConfigPath(path string) Option {
	return func(m *Manager) { m.v.AddConfigPath(path) }
}

// NewManager creates a manager searching ".", "./config" and
// "$HOME/.pocketbase" for pocketbase.yaml.
func NewManager() *Manager {
	v := viper.New()
	v.SetConfigName("pocketbase")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.pocketbase")

	// POCKETBASE_CLIENT_BASE_URL overrides client.base_url
	v.SetEnvPrefix("POCKETBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return &Manager{v: v}
}

// NewManagerWithOptions creates a manager and applies opts
func NewManagerWithOptions(opts ...Option) *Manager {
	m := NewManager()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads the config file if one exists. A missing file is not an error;
// defaults and environment variables still apply.
func (m *Manager) Load() error {
	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// GetConfig decodes and validates the merged configuration
func (m *Manager) GetConfig() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (m *Manager) GetString(key string) string {
	return m.v.GetString(key)
}

// Set overrides a key above every other source
func (m *Manager) Set(key string, value interface{}) {
	m.v.Set(key, value)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.base_url", "http://127.0.0.1:8090")
	v.SetDefault("client.language", "en-US")
	v.SetDefault("client.timeout", "30s")
	v.SetDefault("client.rate_limit_rps", 0.0)
	v.SetDefault("client.rate_limit_burst", 10)

	v.SetDefault("auth.refresh_threshold", "60s")
	v.SetDefault("auth.collection", "_superusers")
	v.SetDefault("auth.identity", "")
	v.SetDefault("auth.password", "")

	v.SetDefault("realtime.path", "/api/realtime")
	v.SetDefault("realtime.read_timeout", "15m")
	v.SetDefault("realtime.backoff.initial_interval", "200ms")
	v.SetDefault("realtime.backoff.max_interval", "10s")
	v.SetDefault("realtime.backoff.multiplier", 2.0)
	v.SetDefault("realtime.backoff.randomization_factor", 0.5)
	v.SetDefault("realtime.backoff.max_elapsed_time", "0s")

	v.SetDefault("logger.dev", false)
	v.SetDefault("logger.path", "")

	v.SetDefault("error_tracking.enabled", false)
	v.SetDefault("error_tracking.provider", "noop")
	v.SetDefault("error_tracking.sample_rate", 1.0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "pocketbase-client")
	v.SetDefault("tracing.service_version", "1.0.0")
	v.SetDefault("tracing.endpoint", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", "pocketbase_client")
	v.SetDefault("metrics.addr", "")
}
