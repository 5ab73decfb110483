package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kozaktomas/vface/internal/audit"
	"github.com/kozaktomas/vface/internal/auth"
	"github.com/kozaktomas/vface/internal/config"
	"github.com/kozaktomas/vface/internal/database"
	"github.com/kozaktomas/vface/internal/database/mariadb"
	"github.com/kozaktomas/vface/internal/database/postgres"
	"github.com/kozaktomas/vface/internal/dispatch"
	"github.com/kozaktomas/vface/internal/encoder"
	"github.com/kozaktomas/vface/internal/gallery"
	"github.com/kozaktomas/vface/internal/metrics"
)

// backend holds everything a command needs to serve requests.
type backend struct {
	store      database.Store
	stream     *audit.RedisStream
	registry   *prometheus.Registry
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// openStore connects to the configured database and applies migrations.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (database.Store, error) {
	logger.Info("connecting to database", "driver", cfg.Database.Driver)
	var (
		store database.Store
		err   error
	)
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		store, err = mariadb.Open(ctx, cfg.Database)
	case config.DriverPostgres:
		store, err = postgres.Open(ctx, cfg.Database, postgres.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// openBackend wires the store, caches, encoder client and audit sinks into a
// dispatcher.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	b := &backend{store: store, logger: logger}

	sinks := audit.Multi{store}
	if cfg.Audit.RedisURL != "" {
		stream, err := audit.Dial(ctx, cfg.Audit.RedisURL, cfg.Audit.Stream, cfg.Audit.MaxLen)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("connecting audit stream: %w", err)
		}
		b.stream = stream
		sinks = append(sinks, stream)
		logger.Info("audit stream enabled", "stream", stream.Stream())
	}

	b.registry = prometheus.NewRegistry()
	b.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(b.registry)

	gate := auth.NewGate(store,
		auth.WithTTL(cfg.Auth.CacheTTL),
		auth.WithLogger(logger),
		auth.WithMetrics(m),
	)

	strictness := gallery.Relaxed
	if cfg.Gallery.StrictPopulation {
		strictness = gallery.SingleFlight
	}
	galleries := gallery.New(
		gallery.WithTTL(cfg.Gallery.CacheTTL),
		gallery.WithStrictness(strictness),
		gallery.WithLogger(logger),
		gallery.WithMetrics(m),
	)

	enc := encoder.NewClient(cfg.Encoder.URL,
		encoder.WithTimeout(cfg.Encoder.Timeout),
		encoder.WithMaxImageSize(cfg.Encoder.MaxImageSize),
	)

	b.dispatcher = dispatch.New(gate, galleries, store, enc, sinks,
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(m),
		dispatch.WithInvalidateOnRegister(cfg.Gallery.InvalidateOnRegister),
	)
	return b, nil
}

// Close releases the audit stream and the database pool.
func (b *backend) Close() {
	if b.stream != nil {
		if err := b.stream.Close(); err != nil {
			b.logger.Warn("closing audit stream", "error", err)
		}
	}
	if err := b.store.Close(); err != nil {
		b.logger.Warn("closing database", "error", err)
	}
}
