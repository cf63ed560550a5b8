package selector

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pokt-network/discovery/protocol"
)

/* --------------------------------- Selection Config Defaults -------------------------------- */

const (
	// DefaultSelectionTTL is how long a selected node is reused before a fresh probing round.
	DefaultSelectionTTL = time.Hour

	// DefaultProbeTimeout bounds a single health probe.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultProbeConcurrency is the number of health probes in flight per round.
	DefaultProbeConcurrency = 16

	// DefaultHealthCheckPath is appended to a node address to probe it.
	DefaultHealthCheckPath = "/health_check"

	// DefaultUnhealthyPrimaryLag is the number of blocks a node may trail the chain.
	DefaultUnhealthyPrimaryLag int64 = 15

	// DefaultRegressedRatio enters regressed mode only when every responsive node is stale.
	DefaultRegressedRatio = 1.0

	// DefaultExclusionTTL is how long a stale or not-found node sits out of selection.
	DefaultExclusionTTL = 5 * time.Minute
)

/* --------------------------------- Selection Config Struct -------------------------------- */

// Config contains the node selection settings.
// See default values above.
type Config struct {
	// Whitelist, when non-empty, restricts selection to these addresses.
	Whitelist []string `yaml:"whitelist"`
	// Blacklist addresses are never selected.
	Blacklist []string `yaml:"blacklist"`

	SelectionTTL     time.Duration `yaml:"selection_ttl"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	ProbeConcurrency int           `yaml:"probe_concurrency"`
	HealthCheckPath  string        `yaml:"health_check_path"`

	// UnhealthyPrimaryLag is the tolerated block lag. Zero means unset, unless
	// it is written explicitly in YAML, where it requires fully caught up nodes.
	UnhealthyPrimaryLag int64 `yaml:"unhealthy_primary_lag"`
	// UnhealthySecondaryLag is the tolerated plays slot lag. Zero disables the axis.
	UnhealthySecondaryLag int64 `yaml:"unhealthy_secondary_lag"`

	// LagEquivalency treats lags within this many blocks as equal when ranking,
	// so the version tie-break can apply between nearly equal nodes.
	LagEquivalency int64 `yaml:"lag_equivalency"`

	PreferHigherPatchVersion bool `yaml:"prefer_higher_patch_version"`

	// MinimumVersion excludes nodes declaring an older version. Unknown versions pass.
	MinimumVersion string `yaml:"minimum_version"`

	// RegressedRatio is the fraction of stale responsive nodes at which the
	// round is logged as a network-wide regression. A fresh node still wins
	// whenever one responded.
	RegressedRatio float64 `yaml:"regressed_ratio"`

	// ExclusionTTL is how long stale and not-found exclusions last.
	ExclusionTTL time.Duration `yaml:"exclusion_ttl"`

	// primaryLagZero records an explicit unhealthy_primary_lag: 0 in YAML.
	primaryLagZero bool
}

// UnmarshalYAML is a custom unmarshaller for Config.
// It records zero values that were written explicitly.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type temp Config
	var val struct {
		temp `yaml:",inline"`
	}
	if err := value.Decode(&val); err != nil {
		return err
	}
	*c = Config(val.temp)

	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "unhealthy_primary_lag" {
			c.primaryLagZero = c.UnhealthyPrimaryLag == 0
		}
	}
	return nil
}

// HydrateDefaults assigns default values to unset fields.
func (c *Config) HydrateDefaults() {
	if c.SelectionTTL == 0 {
		c.SelectionTTL = DefaultSelectionTTL
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.ProbeConcurrency == 0 {
		c.ProbeConcurrency = DefaultProbeConcurrency
	}
	if c.HealthCheckPath == "" {
		c.HealthCheckPath = DefaultHealthCheckPath
	}
	if c.UnhealthyPrimaryLag == 0 && !c.primaryLagZero {
		c.UnhealthyPrimaryLag = DefaultUnhealthyPrimaryLag
	}
	if c.RegressedRatio == 0 {
		c.RegressedRatio = DefaultRegressedRatio
	}
	if c.ExclusionTTL == 0 {
		c.ExclusionTTL = DefaultExclusionTTL
	}
}

// Validate checks the config after defaults are hydrated.
func (c *Config) Validate() error {
	if c.SelectionTTL < 0 {
		return fmt.Errorf("selection_ttl must be positive, got %v", c.SelectionTTL)
	}
	if c.ProbeTimeout < 0 {
		return fmt.Errorf("probe_timeout must be positive, got %v", c.ProbeTimeout)
	}
	if c.ProbeConcurrency < 0 {
		return fmt.Errorf("probe_concurrency must be positive, got %d", c.ProbeConcurrency)
	}
	if c.UnhealthyPrimaryLag < 0 {
		return fmt.Errorf("unhealthy_primary_lag must not be negative, got %d", c.UnhealthyPrimaryLag)
	}
	if c.UnhealthySecondaryLag < 0 {
		return fmt.Errorf("unhealthy_secondary_lag must not be negative, got %d", c.UnhealthySecondaryLag)
	}
	if c.LagEquivalency < 0 {
		return fmt.Errorf("lag_equivalency must not be negative, got %d", c.LagEquivalency)
	}
	if c.RegressedRatio < 0 || c.RegressedRatio > 1 {
		return fmt.Errorf("regressed_ratio must be within [0, 1], got %v", c.RegressedRatio)
	}
	if c.ExclusionTTL < 0 {
		return fmt.Errorf("exclusion_ttl must be positive, got %v", c.ExclusionTTL)
	}
	if _, err := protocol.ParseVersion(c.MinimumVersion); err != nil {
		return fmt.Errorf("minimum_version: %w", err)
	}
	if _, err := NewAddrSet(c.Whitelist); err != nil {
		return fmt.Errorf("whitelist: %w", err)
	}
	if _, err := NewAddrSet(c.Blacklist); err != nil {
		return fmt.Errorf("blacklist: %w", err)
	}
	return nil
}

// Thresholds returns the freshness thresholds described by the config.
func (c *Config) Thresholds() protocol.FreshnessThresholds {
	return protocol.FreshnessThresholds{
		PrimaryLag:   c.UnhealthyPrimaryLag,
		SecondaryLag: c.UnhealthySecondaryLag,
	}
}
