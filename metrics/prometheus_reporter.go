package metrics

import (
	"context"
	"net/http"
	"net/http/pprof"

	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pokt-network/discovery/protocol"
)

const endpointMetrics = "/metrics"

// PrometheusMonitor is a monitoring sink that turns request events into metrics.
type PrometheusMonitor struct {
	Logger polylog.Logger
}

// Observe records one classified request attempt.
func (pm *PrometheusMonitor) Observe(_ context.Context, event protocol.RequestEvent) error {
	domain := EndpointDomain(string(event.Endpoint))
	outcome := event.Outcome.String()
	latencySeconds := event.Latency.Seconds()

	RecordRequest(domain, event.Method, outcome, event.StatusCode, latencySeconds)
	if event.Outcome == protocol.OutcomeSuccess {
		RecordLatencySignal(domain, float64(event.LatencyMillis()))
	}

	if pm.Logger != nil {
		pm.Logger.Debug().
			Str("request_id", event.RequestID).
			Str("endpoint_domain", domain).
			Str("path", event.Path).
			Str("outcome", outcome).
			Int("status_code", event.StatusCode).
			Int64("latency_ms", event.LatencyMillis()).
			Msg("Recorded discovery node request")
	}
	return nil
}

// ServeMetrics starts a metrics server on the given address.
func (pm *PrometheusMonitor) ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle(endpointMetrics, promhttp.Handler())

	go func() {
		pm.Logger.Info().Str("endpoint_addr", addr).Msg("starting Prometheus reporter to serve metrics asynchronously.")
		if err := http.ListenAndServe(addr, mux); err != nil {
			pm.Logger.Error().Err(err).Msg("prometheus metrics reporter failed starting server")
		}
	}()

	return nil
}

// ServePprof starts a pprof server on the given address until ctx is done.
func ServePprof(ctx context.Context, logger polylog.Logger, addr string) {
	pprofMux := http.NewServeMux()
	pprofMux.HandleFunc("/debug/pprof/", pprof.Index)
	pprofMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	pprofMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	pprofMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	pprofMux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server := &http.Server{
		Addr:    addr,
		Handler: pprofMux,
	}

	go func() {
		logger.Info().Str("endpoint", addr).Msg("starting a pprof endpoint")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Str("endpoint", addr).Msg("unable to start a pprof endpoint")
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info().Str("endpoint", addr).Msg("stopping a pprof endpoint")
		_ = server.Shutdown(context.Background())
	}()
}
