package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pokt-network/discovery/router"
)

// shutdownTimeout bounds the graceful shutdown of the status server.
const shutdownTimeout = 10 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep a node selected and expose status, metrics and pprof endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	// Background services (pprof) stop when this context is canceled.
	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	c, config, logger, err := newClient(backgroundCtx, configPath)
	if err != nil {
		return err
	}

	if _, err := setupMetricsServer(logger, config.Metrics.PrometheusAddr); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	if config.Metrics.PprofEnabled {
		setupPprofServer(backgroundCtx, logger, config.Metrics.PprofAddr)
	}

	// Warm the selection so the first request does not pay for a probing round.
	// A failure here is not fatal: /ready reports it and requests retry selection.
	warmCtx, warmCancel := context.WithTimeout(backgroundCtx, config.Router.ReadinessTimeout)
	if sel, err := c.Select(warmCtx); err != nil {
		logger.Warn().Err(err).Msg("Initial discovery node selection failed")
	} else {
		logger.Info().Str("endpoint", string(sel.Addr())).Bool("regressed", sel.Regressed).Msg("Initial discovery node selected")
	}
	warmCancel()

	server, err := router.NewRouter(logger, c, config.Router).Start()
	if err != nil {
		return fmt.Errorf("failed to start status API: %w", err)
	}

	logger.Info().
		Str("version", versionInfo()).
		Int("endpoint_count", len(config.Registry.Endpoints)).
		Str("registry_url", config.Registry.URL).
		Int64("unhealthy_primary_lag", config.Selection.UnhealthyPrimaryLag).
		Int64("unhealthy_secondary_lag", config.Selection.UnhealthySecondaryLag).
		Str("selection_store", config.Storage.Type).
		Msg("Discovery client initialized")

	logger.Info().
		Str("status", fmt.Sprintf("http://localhost:%d/selection", config.Router.Port)).
		Str("health", fmt.Sprintf("http://localhost:%d/healthz", config.Router.Port)).
		Str("metrics", fmt.Sprintf("http://%s/metrics", config.Metrics.PrometheusAddr)).
		Bool("pprof_enabled", config.Metrics.PprofEnabled).
		Msg("Available endpoints")

	// -------------------- Shutdown --------------------
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down discovery client...")
	backgroundCancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("status API forced to shutdown")
	}

	if err := c.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close discovery client")
	}

	logger.Info().Msg("Discovery client exited properly")
	return nil
}
