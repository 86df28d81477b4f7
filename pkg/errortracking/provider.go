package errortracking

import (
	"context"
	"time"
)

// Severity represents the severity level of a captured fault
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityDebug   Severity = "debug"
)

// Provider reports faults that the SDK contains instead of returning to a
// caller: panicking subscription callbacks, failed background resyncs and
// refreshes that happen on behalf of another request.
type Provider interface {
	CaptureError(ctx context.Context, err error, severity Severity, extra map[string]interface{})
	CaptureMessage(ctx context.Context, message string, severity Severity, extra map[string]interface{})

	// CapturePanic receives the value returned by recover() and the stack of
	// the goroutine that panicked.
	CapturePanic(ctx context.Context, recovered interface{}, stackTrace []byte, extra map[string]interface{})

	// Flush blocks until queued events are delivered or timeout passes and
	// reports whether the queue drained.
	Flush(timeout time.Duration) bool
	Close() error
}

// NoOpProvider drops every event. It is what NewProviderFromConfig returns
// while error tracking is disabled.
type NoOpProvider struct{}

func NewNoOpProvider() *NoOpProvider { return &NoOpProvider{} }

func (*NoOpProvider) CaptureError(context.Context, error, Severity, map[string]interface{})     {}
func (*NoOpProvider) CaptureMessage(context.Context, string, Severity, map[string]interface{})  {}
func (*NoOpProvider) CapturePanic(context.Context, interface{}, []byte, map[string]interface{}) {}
func (*NoOpProvider) Flush(time.Duration) bool                                                  { return true }
func (*NoOpProvider) Close() error                                                              { return nil }
