package metrics

import (
	"net/http"
	"sync"
	"time"
)

// Provider defines the interface for metric collection
type Provider interface {
	// RecordHTTPRequest records an outgoing API request
	RecordHTTPRequest(method, path, status string, duration time.Duration)

	// RecordRealtimeConnect records a connect acknowledgment on the event stream
	RecordRealtimeConnect()

	// RecordRealtimeReconnect records a reconnect attempt after a transport failure
	RecordRealtimeReconnect()

	// SetRealtimeState publishes the connection state (0 disconnected, 1 connecting, 2 connected)
	SetRealtimeState(state int)

	// SetSubscriptions publishes the number of distinct subscription keys
	SetSubscriptions(count int)

	// RecordEventDispatched records one event delivered to one callback
	RecordEventDispatched(topic string)

	// RecordCallbackFault records a callback that failed or panicked
	RecordCallbackFault(topic string)

	// RecordTokenRefresh records a token refresh attempt and its outcome
	RecordTokenRefresh(err error)

	// Handler returns an HTTP handler exposing the metrics
	Handler() http.Handler
}

var (
	providerMu     sync.RWMutex
	globalProvider Provider
)

// SetProvider sets the global metrics provider
func SetProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	globalProvider = p
}

// GetProvider returns the current metrics provider, or a no-op provider when none is set
func GetProvider() Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if globalProvider == nil {
		return &NoOpProvider{}
	}
	return globalProvider
}

// NoOpProvider is a no-op implementation of Provider
type NoOpProvider struct{}

func (n *NoOpProvider) RecordHTTPRequest(method, path, status string, duration time.Duration) {}
func (n *NoOpProvider) RecordRealtimeConnect()                                                {}
func (n *NoOpProvider) RecordRealtimeReconnect()                                              {}
func (n *NoOpProvider) SetRealtimeState(state int)                                            {}
func (n *NoOpProvider) SetSubscriptions(count int)                                            {}
func (n *NoOpProvider) RecordEventDispatched(topic string)                                    {}
func (n *NoOpProvider) RecordCallbackFault(topic string)                                      {}
func (n *NoOpProvider) RecordTokenRefresh(err error)                                          {}
func (n *NoOpProvider) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Metrics provider not configured", http.StatusNotFound)
	})
}
