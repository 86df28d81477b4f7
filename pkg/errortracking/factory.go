package errortracking

import (
	"fmt"

	"github.com/thijsmie/pocketbase/pkg/config"
)

type builder func(cfg config.ErrorTrackingConfig) (Provider, error)

var builders = map[string]builder{
	"sentry": func(cfg config.ErrorTrackingConfig) (Provider, error) {
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sentry DSN is required when error tracking is enabled")
		}
		return NewSentryProvider(SentryConfig{
			DSN:         cfg.DSN,
			Environment: cfg.Environment,
			Release:     cfg.Release,
			Debug:       cfg.Debug,
			SampleRate:  cfg.SampleRate,
		})
	},
	"memory": func(config.ErrorTrackingConfig) (Provider, error) { return NewRecorder(), nil },
	"noop":   func(config.ErrorTrackingConfig) (Provider, error) { return NewNoOpProvider(), nil },
}

// NewProviderFromConfig selects a provider by cfg.Provider. Disabled tracking
// and an empty provider name both yield a NoOpProvider.
func NewProviderFromConfig(cfg config.ErrorTrackingConfig) (Provider, error) {
	if !cfg.Enabled || cfg.Provider == "" {
		return NewNoOpProvider(), nil
	}

	build, ok := builders[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown error tracking provider: %s", cfg.Provider)
	}
	p, err := build(cfg)
	if err != nil {
		return nil, fmt.Errorf("error tracking provider %s: %w", cfg.Provider, err)
	}
	return p, nil
}
