// Package gallery caches the decoded identities of (tenant, group) pairs.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kozaktomas/vface/internal/cache"
	"github.com/kozaktomas/vface/internal/database"
	"github.com/kozaktomas/vface/internal/metrics"
)

// DefaultTTL is how long a loaded gallery is served from memory.
const DefaultTTL = 2 * time.Hour

var (
	// ErrNoSuchGallery means the store holds no identities for the group.
	ErrNoSuchGallery = errors.New("no identities registered for group")
	// ErrNotFound means nothing was cached for the key being invalidated.
	ErrNotFound = errors.New("the data cache does not have relevant data")
)

// Strictness selects how concurrent misses for one key are populated.
type Strictness int

const (
	// Relaxed lets concurrent misses each call the loader; the last Put wins.
	Relaxed Strictness = iota
	// SingleFlight collapses concurrent misses for a key into one loader call.
	SingleFlight
)

// Key identifies one gallery.
type Key struct {
	TenantID database.TenantID
	GroupID  string
}

func (k Key) String() string {
	return fmt.Sprintf("%d_%s", k.TenantID, k.GroupID)
}

// Entry is an immutable, fully populated gallery.
type Entry struct {
	TenantID   database.TenantID
	GroupID    string
	Identities []database.IdentityRecord
	CachedAt   time.Time
	Size       int
}

// Loader fetches the identities of a group from the store.
type Loader func(ctx context.Context, tenant database.TenantID, groupID string) ([]database.IdentityRecord, error)

// Cache holds galleries keyed by (tenant, group).
type Cache struct {
	entries    *cache.Expiring[Key, *Entry]
	strictness Strictness
	flight     singleflight.Group
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*cacheOptions)

type cacheOptions struct {
	ttl        time.Duration
	clock      func() time.Time
	strictness Strictness
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *cacheOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *cacheOptions) {
		o.clock = now
	}
}

func WithStrictness(s Strictness) Option {
	return func(o *cacheOptions) {
		o.strictness = s
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *cacheOptions) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *cacheOptions) {
		o.metrics = m
	}
}

// New creates an empty gallery cache.
func New(opts ...Option) *Cache {
	o := cacheOptions{
		ttl:    DefaultTTL,
		clock:  time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache{
		entries:    cache.NewExpiring[Key, *Entry](o.ttl, cache.WithClock(o.clock)),
		strictness: o.strictness,
		logger:     o.logger,
		metrics:    o.metrics,
	}
}

// Resolve returns the cached gallery for (tenant, group), calling load on a
// miss. A failing or empty load leaves the cache untouched.
func (c *Cache) Resolve(ctx context.Context, tenant database.TenantID, groupID string, load Loader) (*Entry, error) {
	c.entries.Sweep(c.entries.Now())
	defer func() { c.metrics.SetCachedGalleries(c.entries.Len()) }()

	key := Key{TenantID: tenant, GroupID: groupID}
	if entry, ok := c.entries.Get(key); ok {
		c.metrics.GalleryCacheLookup(true)
		return entry, nil
	}
	c.metrics.GalleryCacheLookup(false)

	if c.strictness == SingleFlight {
		v, err, _ := c.flight.Do(key.String(), func() (any, error) {
			// Another caller may have populated the key while we queued.
			if entry, ok := c.entries.Get(key); ok {
				return entry, nil
			}
			return c.populate(ctx, key, load)
		})
		if err != nil {
			return nil, err
		}
		return v.(*Entry), nil
	}
	return c.populate(ctx, key, load)
}

func (c *Cache) populate(ctx context.Context, key Key, load Loader) (*Entry, error) {
	records, err := load(ctx, key.TenantID, key.GroupID)
	if err != nil {
		return nil, fmt.Errorf("load gallery %s: %w", key, err)
	}
	if len(records) == 0 {
		return nil, ErrNoSuchGallery
	}

	entry := &Entry{
		TenantID:   key.TenantID,
		GroupID:    key.GroupID,
		Identities: records,
		CachedAt:   c.entries.Now(),
		Size:       len(records),
	}
	c.entries.Put(key, entry)
	c.metrics.GalleryLoaded()
	c.logger.Info("gallery loaded", "tenant", key.TenantID, "group", key.GroupID, "faces", entry.Size, "ttl", c.entries.TTL())
	return entry, nil
}

// Invalidate drops the cached gallery for (tenant, group). Returns
// ErrNotFound when nothing was cached.
func (c *Cache) Invalidate(tenant database.TenantID, groupID string) error {
	removed := c.entries.Invalidate(Key{TenantID: tenant, GroupID: groupID})
	c.metrics.SetCachedGalleries(c.entries.Len())
	if !removed {
		return ErrNotFound
	}
	return nil
}
