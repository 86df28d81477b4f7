package errortracking

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryProvider implements the Provider interface using Sentry
type SentryProvider struct {
	hub *sentry.Hub
}

// SentryConfig holds the configuration for Sentry
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	Debug       bool
	SampleRate  float64
}

// NewSentryProvider initializes the Sentry SDK and returns a provider bound
// to its current hub.
func NewSentryProvider(config SentryConfig) (*SentryProvider, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              config.DSN,
		Environment:      config.Environment,
		Release:          config.Release,
		Debug:            config.Debug,
		AttachStacktrace: true,
		SampleRate:       config.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	return &SentryProvider{hub: sentry.CurrentHub()}, nil
}

func (s *SentryProvider) hubFor(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return s.hub
}

func newEvent(level sentry.Level, message string, extra map[string]interface{}) *sentry.Event {
	event := sentry.NewEvent()
	event.Level = level
	event.Message = message
	event.Tags["sdk"] = "pocketbase-go"
	for k, v := range extra {
		event.Extra[k] = v
	}
	return event
}

func (s *SentryProvider) CaptureError(ctx context.Context, err error, severity Severity, extra map[string]interface{}) {
	if err == nil {
		return
	}

	event := newEvent(convertSeverity(severity), err.Error(), extra)
	event.Exception = []sentry.Exception{{
		Value:      err.Error(),
		Type:       fmt.Sprintf("%T", err),
		Stacktrace: sentry.ExtractStacktrace(err),
	}}
	s.hubFor(ctx).CaptureEvent(event)
}

func (s *SentryProvider) CaptureMessage(ctx context.Context, message string, severity Severity, extra map[string]interface{}) {
	if message == "" {
		return
	}
	s.hubFor(ctx).CaptureEvent(newEvent(convertSeverity(severity), message, extra))
}

func (s *SentryProvider) CapturePanic(ctx context.Context, recovered interface{}, stackTrace []byte, extra map[string]interface{}) {
	if recovered == nil {
		return
	}

	event := newEvent(sentry.LevelError, fmt.Sprintf("Panic: %v", recovered), extra)
	event.Exception = []sentry.Exception{{
		Value: fmt.Sprintf("%v", recovered),
		Type:  "panic",
	}}
	if stackTrace != nil {
		event.Extra["stack_trace"] = string(stackTrace)
	}
	s.hubFor(ctx).CaptureEvent(event)
}

func (s *SentryProvider) Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

func (s *SentryProvider) Close() error {
	sentry.Flush(2 * time.Second)
	return nil
}

func convertSeverity(severity Severity) sentry.Level {
	switch severity {
	case SeverityWarning:
		return sentry.LevelWarning
	case SeverityInfo:
		return sentry.LevelInfo
	case SeverityDebug:
		return sentry.LevelDebug
	default:
		return sentry.LevelError
	}
}
