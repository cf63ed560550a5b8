// Package router serves the operator status surface of a long-running client:
// liveness, readiness, the current selection and the blacklist.
package router

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/pokt-network/discovery/config"
	"github.com/pokt-network/discovery/protocol"
	"github.com/pokt-network/discovery/selector"
)

const (
	imageTagEnvVar  = "IMAGE_TAG"
	defaultImageTag = "development"
)

// SelectionReporter exposes the node selection state to operators.
// Implemented by client.Client.
type SelectionReporter interface {
	Select(ctx context.Context) (selector.Selection, error)
	Current() (selector.Selection, bool)
	ClearCached()

	Blacklisted() []selector.BlacklistedEndpoint
	ResetBlacklist()
	ExclusionCount() int
	Rounds() int64
	Thresholds() protocol.FreshnessThresholds
}

type router struct {
	mux      *http.ServeMux
	reporter SelectionReporter
	config   config.RouterConfig
	logger   polylog.Logger
}

/* --------------------------------- Init -------------------------------- */

// NewRouter creates a new status router.
func NewRouter(logger polylog.Logger, reporter SelectionReporter, cfg config.RouterConfig) *router {
	r := &router{
		mux:      http.NewServeMux(),
		reporter: reporter,
		config:   cfg,
		logger:   logger.With("package", "router"),
	}
	r.handleRoutes()
	return r
}

func (r *router) handleRoutes() {
	// GET /healthz - liveness, never touches the network
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	// GET /ready - 200 once a node is selectable
	r.mux.HandleFunc("GET /ready", r.handleReady)

	r.mux.HandleFunc("GET /selection", r.handleSelection)
	// DELETE /selection - forget the selection; the next request reselects
	r.mux.HandleFunc("DELETE /selection", r.handleClearSelection)

	r.mux.HandleFunc("GET /blacklist", r.handleBlacklist)
	r.mux.HandleFunc("DELETE /blacklist", r.handleResetBlacklist)
}

// Handler returns the router's handler, for tests and embedding.
func (r *router) Handler() http.Handler {
	return r.mux
}

// Start serves the status API in the background and returns the server for shutdown.
func (r *router) Start() (*http.Server, error) {
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", r.config.Port),
		Handler:        r.mux,
		ReadTimeout:    r.config.ReadTimeout,
		WriteTimeout:   r.config.WriteTimeout,
		IdleTimeout:    r.config.IdleTimeout,
		MaxHeaderBytes: r.config.MaxRequestHeaderBytes,
	}

	go func() {
		r.logger.Info().Msgf("status API running on port %d", r.config.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error().Err(err).Msg("status API server failed")
		}
	}()

	return server, nil
}
