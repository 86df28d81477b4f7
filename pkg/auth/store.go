// Package auth keeps the identity of a client session and attaches its token
// to outgoing requests, refreshing it shortly before it expires.
package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/thijsmie/pocketbase/pkg/logger"
	"github.com/thijsmie/pocketbase/pkg/metrics"
	"github.com/thijsmie/pocketbase/pkg/models"
)

// DefaultRefreshThreshold is how long before expiry a token gets refreshed.
const DefaultRefreshThreshold = 60 * time.Second

var (
	ErrAnonymous   = errors.New("auth: no token to refresh")
	ErrNoRefresher = errors.New("auth: no refresher configured")
)

// Kind is the kind of principal a token was issued for.
type Kind int

const (
	KindNone Kind = iota
	KindRecord
	KindSuperuser
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindSuperuser:
		return "superuser"
	}
	return "none"
}

// State of the store
type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
)

func (s State) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Identity is a snapshot of the authenticated principal.
type Identity struct {
	Kind      Kind
	Principal models.Record
	Token     string
	Claims    Claims
}

// Refresher exchanges the current identity for a fresh token. It is expected
// to store the result through SetSuperuser or SetRecordAuth.
type Refresher func(ctx context.Context, current Identity) error

// Option configures a Store
type Option func(*Store)

// WithRefreshThreshold overrides DefaultRefreshThreshold
func WithRefreshThreshold(d time.Duration) Option {
	return func(s *Store) { s.threshold = d }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRefresher sets the refresher at construction time
func WithRefresher(r Refresher) Option {
	return func(s *Store) { s.refresher = r }
}

// WithMetrics records refresh outcomes on p instead of the global provider
func WithMetrics(p metrics.Provider) Option {
	return func(s *Store) { s.metrics = p }
}

// Store holds the token and principal of one client session.
type Store struct {
	mu        sync.RWMutex
	kind      Kind
	principal models.Record
	token     string
	claims    Claims

	threshold time.Duration
	now       func() time.Time
	refresher Refresher
	flight    singleflight.Group
	metrics   metrics.Provider
}

// NewStore creates an anonymous store
func NewStore(opts ...Option) *Store {
	s := &Store{
		threshold: DefaultRefreshThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) provider() metrics.Provider {
	if s.metrics != nil {
		return s.metrics
	}
	return metrics.GetProvider()
}

// SetRefresher installs the refresher. The composition root calls it once the
// services the refresher needs exist.
func (s *Store) SetRefresher(r Refresher) {
	s.mu.Lock()
	s.refresher = r
	s.mu.Unlock()
}

// SetIdentity replaces the identity. A nil principal or an empty token keeps
// the current value.
func (s *Store) SetIdentity(kind Kind, principal models.Record, token string) {
	var claims Claims
	if token != "" {
		var err error
		claims, err = DecodeClaims(token)
		if err != nil {
			logger.Warn("[Auth] Cannot decode token claims, token will not be refreshed: %v", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = kind
	if principal != nil {
		s.principal = principal.Clone()
	}
	if token != "" {
		s.token = token
		s.claims = claims
	}
}

// SetSuperuser stores a superuser identity
func (s *Store) SetSuperuser(principal models.Record, token string) {
	s.SetIdentity(KindSuperuser, principal, token)
}

// SetRecordAuth stores the result of a record auth exchange
func (s *Store) SetRecordAuth(result models.AuthResult) {
	s.SetIdentity(KindRecord, result.Record, result.Token)
}

// Clear drops the identity.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = KindNone
	s.principal = nil
	s.token = ""
	s.claims = Claims{}
}

// Token returns the current raw token or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Principal returns a copy of the authenticated document.
func (s *Store) Principal() models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal.Clone()
}

func (s *Store) Kind() Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kind
}

func (s *Store) IsSuperuser() bool {
	return s.Kind() == KindSuperuser
}

// SuperuserID returns the id of the authenticated superuser, or "" when the
// store holds no superuser.
func (s *Store) SuperuserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kind != KindSuperuser {
		return ""
	}
	return s.principal.ID()
}

// Identity returns a snapshot of the current identity.
func (s *Store) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Identity{
		Kind:      s.kind,
		Principal: s.principal.Clone(),
		Token:     s.token,
		Claims:    s.claims,
	}
}

func (s *Store) State() State {
	if s.Token() == "" {
		return StateAnonymous
	}
	return StateAuthenticated
}

// IsValid reports whether a token is held and has not expired. Tokens without
// an exp claim are considered valid.
func (s *Store) IsValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return false
	}
	exp := s.claims.Expiry()
	return exp.IsZero() || s.now().Before(exp)
}

func (s *Store) needsRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return false
	}
	exp := s.claims.Expiry()
	if exp.IsZero() {
		return false
	}
	return exp.Sub(s.now()) < s.threshold
}

// Authorize attaches the current token to req, refreshing it first when it
// expires within the threshold. A failed refresh is logged and the stale
// token is attached anyway. Without a token the request is left untouched.
func (s *Store) Authorize(ctx context.Context, req *http.Request) error {
	if s.Token() == "" {
		return nil
	}

	if !refreshSkipped(ctx) && s.needsRefresh() {
		if err := s.refresh(ctx, "authorize", true); err != nil {
			logger.Warn("[Auth] Token refresh before %s %s failed: %v", req.Method, req.URL.Path, err)
		}
	}

	if token := s.Token(); token != "" {
		req.Header.Set("Authorization", token)
	}
	return nil
}

// Refresh exchanges the current token for a new one. Concurrent callers share
// a single in-flight refresh.
func (s *Store) Refresh(ctx context.Context) error {
	return s.refresh(ctx, "refresh", false)
}

func (s *Store) refresh(ctx context.Context, key string, onlyIfStale bool) error {
	s.mu.RLock()
	refresher := s.refresher
	s.mu.RUnlock()

	if refresher == nil {
		return ErrNoRefresher
	}
	if s.Token() == "" {
		return ErrAnonymous
	}

	// The shared refresh outlives the caller that started it; each waiter
	// still gives up on its own context.
	detached := SkipRefresh(context.WithoutCancel(ctx))
	ch := s.flight.DoChan(key, func() (any, error) {
		if onlyIfStale && !s.needsRefresh() {
			return nil, nil
		}
		logger.Debug("[Auth] Refreshing %s token", s.Kind())
		err := refresher(detached, s.Identity())
		s.provider().RecordTokenRefresh(err)
		return nil, err
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}
