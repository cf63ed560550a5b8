package config

/* --------------------------------- Metrics Config Defaults -------------------------------- */

const (
	// defaultPrometheusPort serves /metrics for the serve command.
	defaultPrometheusPort = ":9090"

	// defaultPprofPort follows https://pkg.go.dev/net/http/pprof
	defaultPprofPort = ":6060"
)

/* --------------------------------- Metrics Config Struct -------------------------------- */

// MetricsConfig contains the metrics and profiling server addresses.
// Only the long-running serve command starts these servers; one-shot
// commands and embedded clients record metrics without serving them.
type MetricsConfig struct {
	// PrometheusAddr is where /metrics is served.
	// Default: ":9090"
	PrometheusAddr string `yaml:"prometheus_addr"`

	// PprofEnabled starts the pprof server at PprofAddr.
	PprofEnabled bool `yaml:"pprof_enabled"`

	// PprofAddr is where /debug/pprof is served when enabled.
	// Default: ":6060"
	PprofAddr string `yaml:"pprof_addr"`
}

/* --------------------------------- Metrics Config Private Helpers -------------------------------- */

func (c *MetricsConfig) hydrateMetricsDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = defaultPrometheusPort
	}
	if c.PprofAddr == "" {
		c.PprofAddr = defaultPprofPort
	}
}
