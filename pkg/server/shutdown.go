package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/thijsmie/pocketbase/pkg/logger"
	"github.com/thijsmie/pocketbase/pkg/metrics"
)

// CheckFunc reports whether a dependency of the process is ready.
type CheckFunc func() error

// ShutdownCallback is run once when the server shuts down, before the
// listener is closed.
type ShutdownCallback func(context.Context) error

// Config holds configuration for the operations server
type Config struct {
	// Addr is the listen address (e.g., ":9090")
	Addr string

	// Ready is consulted by /readyz. Nil means always ready.
	Ready CheckFunc

	// ShutdownTimeout bounds the whole shutdown. Default: 10 seconds
	ShutdownTimeout time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// GracefulServer exposes /metrics, /healthz and /readyz for a long running
// client process and shuts down in an orderly way.
type GracefulServer struct {
	server          *http.Server
	ready           CheckFunc
	shutdownTimeout time.Duration

	inFlightRequests atomic.Int64
	isShuttingDown   atomic.Bool
	shutdownOnce     sync.Once
	shutdownErr      error
	shutdownComplete chan struct{}

	callbacksMu sync.Mutex
	callbacks   []ShutdownCallback
}

// NewGracefulServer creates the server and its router. The metrics handler
// is taken from the installed metrics provider at request time.
func NewGracefulServer(config Config) *GracefulServer {
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 5 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	gs := &GracefulServer{
		ready:            config.Ready,
		shutdownTimeout:  config.ShutdownTimeout,
		shutdownComplete: make(chan struct{}),
	}

	router := mux.NewRouter()
	router.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.GetProvider().Handler().ServeHTTP(w, r)
	})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", gs.HealthCheckHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", gs.ReadinessHandler()).Methods(http.MethodGet)

	gs.server = &http.Server{
		Addr:         config.Addr,
		Handler:      gs.TrackRequestsMiddleware(router),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return gs
}

// Handler returns the routed handler, mostly useful for tests
func (gs *GracefulServer) Handler() http.Handler {
	return gs.server.Handler
}

// TrackRequestsMiddleware counts in-flight requests and rejects new ones
// during shutdown
func (gs *GracefulServer) TrackRequestsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gs.isShuttingDown.Load() {
			http.Error(w, `{"error":"service_unavailable","message":"Server is shutting down"}`, http.StatusServiceUnavailable)
			return
		}

		gs.inFlightRequests.Add(1)
		defer gs.inFlightRequests.Add(-1)

		next.ServeHTTP(w, r)
	})
}

// Start listens on the configured address and serves in the background.
// It returns once the listener is bound.
func (gs *GracefulServer) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", gs.server.Addr, err)
	}

	go func() {
		logger.Info("Operations server listening on %s", ln.Addr())
		if err := gs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Operations server stopped: %v", err)
		}
	}()
	return ln.Addr(), nil
}

// RegisterShutdownCallback adds a cleanup step, e.g. closing the realtime
// connection or flushing the error tracker. Callbacks run in registration
// order.
func (gs *GracefulServer) RegisterShutdownCallback(cb ShutdownCallback) {
	gs.callbacksMu.Lock()
	defer gs.callbacksMu.Unlock()
	gs.callbacks = append(gs.callbacks, cb)
}

// Shutdown marks the server unhealthy, runs the callbacks and closes the
// listener. Only the first call does any work; later calls return its result.
func (gs *GracefulServer) Shutdown(ctx context.Context) error {
	gs.shutdownOnce.Do(func() {
		logger.Info("Starting graceful shutdown...")
		gs.isShuttingDown.Store(true)

		shutdownCtx, cancel := context.WithTimeout(ctx, gs.shutdownTimeout)
		defer cancel()

		var errs []error
		if err := gs.runCallbacks(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := gs.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down server: %v", err)
			errs = append(errs, err)
		}

		gs.shutdownErr = errors.Join(errs...)
		logger.Info("Graceful shutdown complete")
		close(gs.shutdownComplete)
	})

	<-gs.shutdownComplete
	return gs.shutdownErr
}

func (gs *GracefulServer) runCallbacks(ctx context.Context) error {
	gs.callbacksMu.Lock()
	callbacks := make([]ShutdownCallback, len(gs.callbacks))
	copy(callbacks, gs.callbacks)
	gs.callbacksMu.Unlock()

	var errs []error
	for i, cb := range callbacks {
		logger.Debug("Executing shutdown callback %d/%d", i+1, len(callbacks))
		if err := cb(ctx); err != nil {
			logger.Error("Shutdown callback %d failed: %v", i+1, err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown callbacks failed: %w", errors.Join(errs...))
	}
	return nil
}

// InFlightRequests returns the current number of in-flight requests
func (gs *GracefulServer) InFlightRequests() int64 {
	return gs.inFlightRequests.Load()
}

// IsShuttingDown returns true if the server is shutting down
func (gs *GracefulServer) IsShuttingDown() bool {
	return gs.isShuttingDown.Load()
}

// Wait blocks until shutdown is complete
func (gs *GracefulServer) Wait() {
	<-gs.shutdownComplete
}

// HealthCheckHandler answers 200 while the process runs, 503 once shutdown
// has begun
func (gs *GracefulServer) HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if gs.IsShuttingDown() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"shutting_down"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"healthy"}`)); err != nil {
			logger.Warn("Failed to write. %v", err)
		}
	}
}

// ReadinessHandler answers 200 when the Ready check passes
func (gs *GracefulServer) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if gs.IsShuttingDown() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"ready":false,"reason":"shutting_down"}`))
			return
		}
		if gs.ready != nil {
			if err := gs.ready(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"ready":false,"reason":%q}`, err.Error())
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"ready":true,"in_flight_requests":%d}`, gs.InFlightRequests())
	}
}
