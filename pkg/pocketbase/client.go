// Package pocketbase is the entry point of the SDK. A Client owns the auth
// store, the realtime connection and the API services of one session.
package pocketbase

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/thijsmie/pocketbase/pkg/auth"
	"github.com/thijsmie/pocketbase/pkg/config"
	"github.com/thijsmie/pocketbase/pkg/logger"
	"github.com/thijsmie/pocketbase/pkg/metrics"
	"github.com/thijsmie/pocketbase/pkg/realtime"
	"github.com/thijsmie/pocketbase/pkg/transport"
)

// DefaultAuthCollection is refreshed for record identities that do not carry
// their collection name.
const DefaultAuthCollection = "users"

// Client is a PocketBase client session.
type Client struct {
	transport *transport.Client
	store     *auth.Store
	realtime  *realtime.Service

	admins      *AdminService
	backups     *BackupService
	collections *CollectionService
	files       *FileService
	health      *HealthService
	logs        *LogService
	settings    *SettingsService

	mu      sync.Mutex
	records map[string]*RecordService
}

type options struct {
	transport []transport.Option
	auth      []auth.Option
	realtime  []realtime.Option
}

// Option configures a Client
type Option func(*options)

// WithTransportOptions passes options to the HTTP layer
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) { o.transport = append(o.transport, opts...) }
}

// WithAuthOptions passes options to the auth store
func WithAuthOptions(opts ...auth.Option) Option {
	return func(o *options) { o.auth = append(o.auth, opts...) }
}

// WithRealtimeOptions passes options to the realtime service
func WithRealtimeOptions(opts ...realtime.Option) Option {
	return func(o *options) { o.realtime = append(o.realtime, opts...) }
}

// WithMetrics records requests, token refreshes and realtime activity on p
// instead of the global provider
func WithMetrics(p metrics.Provider) Option {
	return func(o *options) {
		o.transport = append(o.transport, transport.WithMetrics(p))
		o.auth = append(o.auth, auth.WithMetrics(p))
		o.realtime = append(o.realtime, realtime.WithMetrics(p))
	}
}

// WithHTTPClient sets the underlying *http.Client
func WithHTTPClient(hc *http.Client) Option {
	return WithTransportOptions(transport.WithHTTPClient(hc))
}

// WithTimeout bounds every request except the realtime stream
func WithTimeout(d time.Duration) Option {
	return WithTransportOptions(transport.WithTimeout(d))
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := auth.NewStore(o.auth...)
	tc, err := transport.New(baseURL, append([]transport.Option{transport.WithAuthorizer(store)}, o.transport...)...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		transport: tc,
		store:     store,
		realtime:  realtime.NewService(tc, o.realtime...),
		records:   make(map[string]*RecordService),
	}
	c.admins = newAdminService(c)
	c.backups = newBackupService(c)
	c.collections = newCollectionService(c)
	c.files = newFileService(c)
	c.health = newHealthService(c)
	c.logs = newLogService(c)
	c.settings = newSettingsService(c)

	store.SetRefresher(c.refresh)
	return c, nil
}

// NewFromConfig creates a client from loaded configuration. opts are applied
// after the configured ones.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	configured := []Option{
		WithTransportOptions(
			transport.WithTimeout(cfg.Client.Timeout),
			transport.WithLanguage(cfg.Client.Language),
			transport.WithRateLimit(cfg.Client.RateLimitRPS, cfg.Client.RateLimitBurst),
		),
		WithRealtimeOptions(realtime.WithBackOff(realtime.BackOffFromConfig(cfg.Realtime.Backoff))),
	}
	if cfg.Auth.RefreshThreshold > 0 {
		configured = append(configured, WithAuthOptions(auth.WithRefreshThreshold(cfg.Auth.RefreshThreshold)))
	}
	if cfg.Realtime.Path != "" {
		configured = append(configured, WithRealtimeOptions(realtime.WithPath(cfg.Realtime.Path)))
	}
	if cfg.Realtime.ReadTimeout > 0 {
		configured = append(configured, WithRealtimeOptions(realtime.WithReadTimeout(cfg.Realtime.ReadTimeout)))
	}
	return New(cfg.Client.BaseURL, append(configured, opts...)...)
}

// refresh renews the token through the auth collection it was issued by.
func (c *Client) refresh(ctx context.Context, current auth.Identity) error {
	if current.Kind == auth.KindSuperuser {
		_, err := c.admins.Auth().Refresh(ctx, nil)
		return err
	}

	collection := current.Principal.CollectionName()
	if collection == "" {
		collection = DefaultAuthCollection
	}
	_, err := c.Collection(collection).Auth().Refresh(ctx, nil)
	return err
}

func (c *Client) AuthStore() *auth.Store { return c.store }
func (c *Client) Realtime() *realtime.Service { return c.realtime }
func (c *Client) Transport() *transport.Client { return c.transport }
func (c *Client) Admins() *AdminService { return c.admins }
func (c *Client) Collections() *CollectionService { return c.collections }
func (c *Client) Files() *FileService { return c.files }
func (c *Client) Health() *HealthService { return c.health }
func (c *Client) Backups() *BackupService { return c.backups }
func (c *Client) Logs() *LogService { return c.logs }
func (c *Client) Settings() *SettingsService { return c.settings }

// Batch returns an empty batch. Batches are not shared, each call starts a
// new one.
func (c *Client) Batch() *BatchService { return newBatchService(c) }

// Collection returns the record service of a collection, by id or name.
func (c *Client) Collection(idOrName string) *RecordService {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.records[idOrName]
	if !ok {
		s = newRecordService(c, idOrName)
		c.records[idOrName] = s
	}
	return s
}

// Close closes the realtime connection. The client stays usable; a later
// subscription reconnects.
func (c *Client) Close(ctx context.Context) error {
	if err := c.realtime.Close(ctx); err != nil {
		logger.Warn("[Client] Closing realtime connection: %v", err)
		return err
	}
	return nil
}
