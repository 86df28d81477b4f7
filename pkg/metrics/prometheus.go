package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusProvider implements the Provider interface using Prometheus
type PrometheusProvider struct {
	gatherer prometheus.Gatherer

	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	connects          prometheus.Counter
	reconnects        prometheus.Counter
	connectionState   prometheus.Gauge
	subscriptions     prometheus.Gauge
	eventsDispatched  *prometheus.CounterVec
	callbackFaults    *prometheus.CounterVec
	tokenRefreshTotal *prometheus.CounterVec
}

// NewPrometheusProvider registers the client metrics on reg. A nil config uses
// DefaultConfig; a nil reg uses a fresh registry, which keeps several clients
// in one process from colliding on the default registerer.
func NewPrometheusProvider(config *Config, reg *prometheus.Registry) *PrometheusProvider {
	cfg := config.withDefaults()
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)
	ns := cfg.Namespace

	return &PrometheusProvider{
		gatherer: reg,
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of API requests in seconds",
				Buckets:   cfg.RequestBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "http_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		connects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "realtime_connects_total",
			Help:      "Connect acknowledgments received on the event stream",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "realtime_reconnects_total",
			Help:      "Reconnect attempts after event stream failures",
		}),
		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "realtime_connection_state",
			Help:      "0 disconnected, 1 connecting, 2 connected",
		}),
		subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "realtime_subscriptions",
			Help:      "Number of distinct subscription keys",
		}),
		eventsDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "realtime_events_dispatched_total",
				Help:      "Events delivered to subscription callbacks",
			},
			[]string{"topic"},
		),
		callbackFaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "realtime_callback_faults_total",
				Help:      "Subscription callbacks that returned an error or panicked",
			},
			[]string{"topic"},
		),
		tokenRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "auth_token_refreshes_total",
				Help:      "Token refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (p *PrometheusProvider) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	p.requestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	p.requestTotal.WithLabelValues(method, path, status).Inc()
}

func (p *PrometheusProvider) RecordRealtimeConnect() {
	p.connects.Inc()
}

func (p *PrometheusProvider) RecordRealtimeReconnect() {
	p.reconnects.Inc()
}

func (p *PrometheusProvider) SetRealtimeState(state int) {
	p.connectionState.Set(float64(state))
}

func (p *PrometheusProvider) SetSubscriptions(count int) {
	p.subscriptions.Set(float64(count))
}

func (p *PrometheusProvider) RecordEventDispatched(topic string) {
	p.eventsDispatched.WithLabelValues(topic).Inc()
}

func (p *PrometheusProvider) RecordCallbackFault(topic string) {
	p.callbackFaults.WithLabelValues(topic).Inc()
}

func (p *PrometheusProvider) RecordTokenRefresh(err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.tokenRefreshTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the registry this provider was created with
func (p *PrometheusProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
