// Package realtime multiplexes topic subscriptions over a single server-sent
// events stream, reconnecting transparently when the stream fails.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/thijsmie/pocketbase/pkg/config"
	"github.com/thijsmie/pocketbase/pkg/logger"
	"github.com/thijsmie/pocketbase/pkg/metrics"
	"github.com/thijsmie/pocketbase/pkg/transport"
)

const (
	DefaultPath        = "/api/realtime"
	DefaultReadTimeout = 15 * time.Minute
)

var (
	// ErrClosed is returned to a Subscribe that was waiting for the connection
	// when it got closed.
	ErrClosed = errors.New("realtime: connection closed")

	ErrEmptyTopic = errors.New("realtime: empty topic")
	ErrNilHandler = errors.New("realtime: nil handler")
)

// Transport is what the service needs from the HTTP client.
type Transport interface {
	Stream(ctx context.Context, path string, header http.Header) (*http.Response, error)
	Send(ctx context.Context, path string, opts transport.SendOptions, out any) error
}

// Option configures a Service
type Option func(*Service)

// WithPath overrides DefaultPath
func WithPath(path string) Option {
	return func(s *Service) { s.path = path }
}

// WithReadTimeout overrides DefaultReadTimeout. A stream that stays silent for
// longer is dropped and reconnected.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Service) { s.readTimeout = d }
}

// WithBackOff sets the reconnect policy. newBackOff is called once per
// connection loop.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Service) { s.newBackOff = newBackOff }
}

// WithMetrics sets the metrics provider, metrics.GetProvider() by default
func WithMetrics(p metrics.Provider) Option {
	return func(s *Service) { s.metrics = p }
}

// BackOffFromConfig builds the reconnect policy from configuration.
func BackOffFromConfig(cfg config.BackoffConfig) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		if cfg.InitialInterval > 0 {
			b.InitialInterval = cfg.InitialInterval
		}
		if cfg.MaxInterval > 0 {
			b.MaxInterval = cfg.MaxInterval
		}
		if cfg.Multiplier > 0 {
			b.Multiplier = cfg.Multiplier
		}
		b.RandomizationFactor = cfg.RandomizationFactor
		b.MaxElapsedTime = cfg.MaxElapsedTime
		return b
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	return b
}

// Service owns the realtime connection of one client session.
type Service struct {
	client      Transport
	path        string
	readTimeout time.Duration
	newBackOff  func() backoff.BackOff
	metrics     metrics.Provider

	registry   *Registry
	dispatcher *Dispatcher

	// syncMu serializes subscription declarations
	syncMu sync.Mutex

	mu          sync.Mutex
	loop        *loop
	state       State
	clientID    string
	lastEventID string
}

func NewService(client Transport, opts ...Option) *Service {
	s := &Service{
		client:      client,
		path:        DefaultPath,
		readTimeout: DefaultReadTimeout,
		newBackOff:  defaultBackOff,
		registry:    NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dispatcher = NewDispatcher(s.registry, s.metrics)
	return s
}

func (s *Service) provider() metrics.Provider {
	if s.metrics != nil {
		return s.metrics
	}
	return metrics.GetProvider()
}

func (s *Service) setStateLocked(state State) {
	s.state = state
	s.provider().SetRealtimeState(int(state))
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ClientID returns the id the server assigned to the current connection
func (s *Service) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// LastEventID returns the id of the last message received, offered to the
// server when the stream is resumed.
func (s *Service) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ID  string
	Key string

	service *Service
}

// Unsubscribe removes the handler. Calling it more than once is a no-op.
func (sub *Subscription) Unsubscribe(ctx context.Context) error {
	return sub.service.Unsubscribe(ctx, sub)
}

// Subscribe registers h for topic and makes sure the server knows about it.
// It connects first when needed and returns once the subscription set has
// been sent. On failure the handler is removed again.
func (s *Service) Subscribe(ctx context.Context, topic string, opts *Options, h Handler) (*Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if h == nil {
		return nil, ErrNilHandler
	}

	key, err := TopicKey(topic, opts)
	if err != nil {
		return nil, fmt.Errorf("realtime: topic key for %s: %w", topic, err)
	}

	sub := &Subscription{ID: uuid.NewString(), Key: key, service: s}
	s.registry.add(key, sub.ID, h)
	logger.Debug("[Realtime] Subscribing %s to %s", sub.ID, key)

	if err := s.ensureActive(ctx); err != nil {
		s.rollback(ctx, sub)
		return nil, err
	}
	if err := s.resync(ctx, false); err != nil {
		s.rollback(ctx, sub)
		return nil, err
	}
	return sub, nil
}

func (s *Service) rollback(ctx context.Context, sub *Subscription) {
	if _, _, empty := s.registry.remove(sub.Key, sub.ID); empty {
		if err := s.closeIfEmpty(ctx); err != nil {
			logger.Warn("[Realtime] Closing unused connection failed: %v", err)
		}
	}
}

// Unsubscribe removes one handler. When its key is gone the server is told
// the new subscription set; when no key remains the connection is closed.
func (s *Service) Unsubscribe(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return nil
	}
	removed, keyGone, empty := s.registry.remove(sub.Key, sub.ID)
	if !removed {
		return nil
	}
	return s.afterRemove(ctx, keyGone, empty)
}

// UnsubscribeKey removes every handler registered under key.
func (s *Service) UnsubscribeKey(ctx context.Context, key string) error {
	removed, empty := s.registry.removeKey(key)
	if !removed {
		return nil
	}
	return s.afterRemove(ctx, true, empty)
}

func (s *Service) afterRemove(ctx context.Context, keyGone, empty bool) error {
	s.provider().SetSubscriptions(s.registry.Len())
	switch {
	case empty:
		return s.closeIfEmpty(ctx)
	case keyGone:
		return s.resync(ctx, false)
	}
	return nil
}

// resync declares the registry's key set to the server when it differs from
// the last one sent, or always when force is set.
func (s *Service) resync(ctx context.Context, force bool) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	clientID := s.ClientID()
	if clientID == "" {
		// not connected: the next connect acknowledgment declares everything
		return nil
	}

	keys, ok := s.registry.pending(force)
	if !ok {
		return nil
	}

	err := s.client.Send(ctx, s.path, transport.SendOptions{
		Method: http.MethodPost,
		Body: map[string]any{
			"clientId":      clientID,
			"subscriptions": keys,
		},
	}, nil)
	if err != nil {
		s.registry.invalidate()
		return fmt.Errorf("realtime: submit subscriptions: %w", err)
	}

	if s.ClientID() != clientID {
		// the connection changed while sending, its own resync takes over
		return nil
	}
	s.registry.commit(keys)
	s.provider().SetSubscriptions(len(keys))
	logger.Debug("[Realtime] Declared %d subscription(s) for client %s", len(keys), clientID)
	return nil
}
