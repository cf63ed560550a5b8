package router

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/pokt-network/discovery/selector"
)

type healthCheckStatus string

const (
	statusReady    healthCheckStatus = "ok"
	statusNotReady healthCheckStatus = "initializing"
)

// HealthzResponse is the JSON response for /healthz.
type HealthzResponse struct {
	Status   healthCheckStatus `json:"status"`
	ImageTag string            `json:"imageTag"`
}

// ReadinessResponse is the JSON response for /ready.
type ReadinessResponse struct {
	Ready    bool   `json:"ready"`
	Endpoint string `json:"endpoint,omitempty"`
	Message  string `json:"message,omitempty"`
}

// SelectionResponse is the JSON response for /selection.
type SelectionResponse struct {
	Endpoint     string    `json:"endpoint"`
	Version      string    `json:"version,omitempty"`
	SelectedAt   time.Time `json:"selected_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Regressed    bool      `json:"regressed"`
	Restored     bool      `json:"restored"`
	PrimaryLag   int64     `json:"primary_lag"`
	SecondaryLag int64     `json:"secondary_lag"`

	UnhealthyPrimaryLag   int64 `json:"unhealthy_primary_lag"`
	UnhealthySecondaryLag int64 `json:"unhealthy_secondary_lag"`
	ExcludedCount         int   `json:"excluded_count"`
	Rounds                int64 `json:"rounds"`
}

// BlacklistResponse is the JSON response for /blacklist.
type BlacklistResponse struct {
	Count     int                            `json:"count"`
	Endpoints []selector.BlacklistedEndpoint `json:"endpoints"`
}

// handleHealthz is a minimal liveness probe.
// The image tag comes from the IMAGE_TAG environment variable set at build time.
func (r *router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	imageTag := os.Getenv(imageTagEnvVar)
	if imageTag == "" {
		imageTag = defaultImageTag
	}
	r.writeJSON(w, http.StatusOK, HealthzResponse{Status: statusReady, ImageTag: imageTag})
}

// handleReady returns 200 once a node is selected, running a bounded round if none is.
// Returns 503 if no node can be selected.
func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if sel, ok := r.reporter.Current(); ok {
		r.writeJSON(w, http.StatusOK, ReadinessResponse{Ready: true, Endpoint: string(sel.Addr())})
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), r.config.ReadinessTimeout)
	defer cancel()

	sel, err := r.reporter.Select(ctx)
	if err != nil {
		r.writeJSON(w, http.StatusServiceUnavailable, ReadinessResponse{
			Ready:   false,
			Message: err.Error(),
		})
		return
	}
	r.writeJSON(w, http.StatusOK, ReadinessResponse{Ready: true, Endpoint: string(sel.Addr())})
}

// handleSelection reports the cached selection. It never probes.
func (r *router) handleSelection(w http.ResponseWriter, req *http.Request) {
	sel, ok := r.reporter.Current()
	if !ok {
		http.Error(w, `{"error": "no discovery node selected"}`, http.StatusNotFound)
		return
	}

	thresholds := r.reporter.Thresholds()
	r.writeJSON(w, http.StatusOK, SelectionResponse{
		Endpoint:              string(sel.Addr()),
		Version:               sel.Endpoint.Version.String(),
		SelectedAt:            sel.SelectedAt,
		ExpiresAt:             sel.ExpiresAt(),
		Regressed:             sel.Regressed,
		Restored:              sel.Restored,
		PrimaryLag:            sel.Health.PrimaryLag(),
		SecondaryLag:          sel.Health.SecondaryLag(),
		UnhealthyPrimaryLag:   thresholds.PrimaryLag,
		UnhealthySecondaryLag: thresholds.SecondaryLag,
		ExcludedCount:         r.reporter.ExclusionCount(),
		Rounds:                r.reporter.Rounds(),
	})
}

func (r *router) handleClearSelection(w http.ResponseWriter, req *http.Request) {
	r.reporter.ClearCached()
	r.logger.Info().Msg("Selection cleared by operator")
	w.WriteHeader(http.StatusNoContent)
}

func (r *router) handleBlacklist(w http.ResponseWriter, req *http.Request) {
	entries := r.reporter.Blacklisted()
	if entries == nil {
		entries = []selector.BlacklistedEndpoint{}
	}
	r.writeJSON(w, http.StatusOK, BlacklistResponse{Count: len(entries), Endpoints: entries})
}

func (r *router) handleResetBlacklist(w http.ResponseWriter, req *http.Request) {
	count := len(r.reporter.Blacklisted())
	r.reporter.ResetBlacklist()
	r.logger.Info().Int("count", count).Msg("Blacklist reset by operator")
	w.WriteHeader(http.StatusNoContent)
}

// writeJSON writes response as JSON with the given status.
func (r *router) writeJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		r.logger.Error().Err(err).Msg("failed to encode status response")
	}
}
