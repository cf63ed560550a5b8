package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pokt-network/discovery/protocol"
	"github.com/pokt-network/discovery/registry"
)

/* --------------------------------- Registry Config Defaults -------------------------------- */

const (
	defaultRegistryRefreshInterval = registry.DefaultRefreshInterval
	defaultRegistryTimeout         = 10 * time.Second
)

/* --------------------------------- Registry Config Struct -------------------------------- */

// RegistryConfig describes where the candidate node list comes from.
// Exactly one of Endpoints or URL must be set.
type RegistryConfig struct {
	// Endpoints is a static candidate list.
	Endpoints []registry.EndpointConfig `yaml:"endpoints"`

	// URL serves a JSON listing of candidates. The listing is cached for RefreshInterval.
	URL string `yaml:"url"`

	// RefreshInterval is how long a fetched listing is reused.
	// Default: 5m
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// Timeout bounds a single listing fetch.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

/* --------------------------------- Registry Config Private Helpers -------------------------------- */

func (c *RegistryConfig) hydrateRegistryDefaults() {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = defaultRegistryRefreshInterval
	}
	if c.Timeout == 0 {
		c.Timeout = defaultRegistryTimeout
	}
}

// Validate ensures exactly one candidate source is configured and well formed.
func (c RegistryConfig) Validate() error {
	hasStatic := len(c.Endpoints) > 0
	hasURL := c.URL != ""

	switch {
	case hasStatic && hasURL:
		return errors.New("only one of endpoints or url may be set")
	case !hasStatic && !hasURL:
		return errors.New("one of endpoints or url must be set")
	}

	if hasURL {
		if _, err := protocol.NormalizeEndpointAddr(c.URL); err != nil {
			return fmt.Errorf("url: %w", err)
		}
	}
	for _, ep := range c.Endpoints {
		if _, err := protocol.NormalizeEndpointAddr(ep.Address); err != nil {
			return fmt.Errorf("endpoints: %w", err)
		}
		if _, err := protocol.ParseVersion(ep.Version); err != nil {
			return fmt.Errorf("endpoints: %s: %w", ep.Address, err)
		}
	}

	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval must be positive, got %v", c.RefreshInterval)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	return nil
}
