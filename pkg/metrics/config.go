package metrics

import "github.com/thijsmie/pocketbase/pkg/config"

var defaultRequestBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Config holds configuration for the Prometheus provider
type Config struct {
	// Namespace prefixes every metric name
	Namespace string

	// RequestBuckets are the histogram buckets of API request durations, in seconds
	RequestBuckets []float64
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() *Config {
	return &Config{Namespace: "pocketbase_client", RequestBuckets: defaultRequestBuckets}
}

// FromConfig builds a provider configuration from the loaded settings
func FromConfig(cfg config.MetricsConfig) *Config {
	c := DefaultConfig()
	if cfg.Namespace != "" {
		c.Namespace = cfg.Namespace
	}
	return c
}

// withDefaults returns a copy of c with empty fields filled in
func (c *Config) withDefaults() Config {
	out := *DefaultConfig()
	if c == nil {
		return out
	}
	out.Namespace = c.Namespace
	if len(c.RequestBuckets) > 0 {
		out.RequestBuckets = c.RequestBuckets
	}
	return out
}
