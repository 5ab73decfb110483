// Package auth validates API client credentials with a time-bounded cache in
// front of the credential store.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/kozaktomas/vface/internal/cache"
	"github.com/kozaktomas/vface/internal/database"
	"github.com/kozaktomas/vface/internal/metrics"
)

// DefaultTTL is how long a validated credential is trusted without asking
// the store again.
const DefaultTTL = 24 * time.Hour

var (
	// ErrInvalidCredentials means the client id and secret were rejected.
	ErrInvalidCredentials = errors.New("invalid client id or key, access denied")
	// ErrStoreUnavailable means the credential store could not be consulted.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// cachedCredential is the cached outcome of a successful validation.
type cachedCredential struct {
	secret string
	tenant database.TenantID
}

// Gate authenticates clients.
type Gate struct {
	store   database.CredentialStore
	cache   *cache.Expiring[string, cachedCredential]
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*gateOptions)

type gateOptions struct {
	ttl     time.Duration
	clock   func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *gateOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock replaces the cache clock.
func WithClock(now func() time.Time) Option {
	return func(o *gateOptions) {
		o.clock = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *gateOptions) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *gateOptions) {
		o.metrics = m
	}
}

// NewGate constructs a Gate backed by store.
func NewGate(store database.CredentialStore, opts ...Option) *Gate {
	o := gateOptions{
		ttl:    DefaultTTL,
		clock:  time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Gate{
		store:   store,
		cache:   cache.NewExpiring[string, cachedCredential](o.ttl, cache.WithClock(o.clock)),
		logger:  o.logger,
		metrics: o.metrics,
	}
}

// Authenticate returns the tenant owning clientID if secret is valid.
// A cached validation is honoured only when the presented secret equals the
// one that was validated; any other secret goes to the store.
func (g *Gate) Authenticate(ctx context.Context, clientID, secret string) (database.TenantID, error) {
	g.cache.Sweep(g.cache.Now())

	if cached, ok := g.cache.Get(clientID); ok &&
		subtle.ConstantTimeCompare([]byte(cached.secret), []byte(secret)) == 1 {
		g.metrics.AuthCacheLookup(true)
		return cached.tenant, nil
	}
	g.metrics.AuthCacheLookup(false)

	tenant, err := g.store.Validate(ctx, clientID, secret)
	switch {
	case errors.Is(err, database.ErrNoMatch):
		g.logger.Warn("client validation failed", "client", clientID)
		return database.NoTenant, ErrInvalidCredentials
	case err != nil:
		g.logger.Error("credential store unavailable", "client", clientID, "error", err)
		return database.NoTenant, ErrStoreUnavailable
	}

	g.cache.Put(clientID, cachedCredential{secret: secret, tenant: tenant})
	g.logger.Debug("client validated", "client", clientID, "tenant", tenant)
	return tenant, nil
}

