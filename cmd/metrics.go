package main

import (
	"context"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/pokt-network/discovery/metrics"
)

// setupMetricsServer starts the Prometheus metrics server at the supplied address.
// Request metrics themselves are recorded by the client's monitoring sink.
func setupMetricsServer(logger polylog.Logger, addr string) (*metrics.PrometheusMonitor, error) {
	pm := &metrics.PrometheusMonitor{
		Logger: logger,
	}

	if err := pm.ServeMetrics(addr); err != nil {
		return nil, err
	}

	return pm, nil
}

// setupPprofServer starts the metric package's pprof server, at the supplied address.
func setupPprofServer(ctx context.Context, logger polylog.Logger, addr string) {
	metrics.ServePprof(ctx, logger, addr)
}
