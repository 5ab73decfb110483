package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/vface/internal/config"
	"github.com/kozaktomas/vface/internal/logger"
	"github.com/kozaktomas/vface/internal/web"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the vface API server.
The server accepts register (/update), recognize (/recognition) and clear
(/clear) requests as JSON, plus their /api/v1 aliases, and exposes
Prometheus metrics on /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Int("max-concurrent", -1, "Concurrent requests served, 0 for unbounded (overrides SERVER_MAX_CONCURRENT)")
}

// applyServeFlags lets explicitly set flags win over the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if n := mustGetInt(cmd, "max-concurrent"); n >= 0 {
		cfg.Server.MaxConcurrent = n
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)

	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	server := web.NewServer(cfg, b.dispatcher, b.registry, log)

	// Start returns as soon as Shutdown begins; wait for in-flight requests
	// before the deferred Close releases the store.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", "error", err)
		}
	}()

	log.Info("vface ready",
		"addr", cfg.Web.Addr(),
		"driver", cfg.Database.Driver,
		"encoder", cfg.Encoder.URL,
		"max_concurrent", cfg.Server.MaxConcurrent,
	)

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-drained
	return nil
}
