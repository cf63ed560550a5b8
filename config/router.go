package config

import (
	"fmt"
	"time"
)

/* --------------------------------- Router Config Defaults -------------------------------- */

const (
	// default status server port
	defaultPort = 3070

	// defaultMaxRequestHeaderBytes is the default maximum size of the HTTP request header.
	defaultMaxRequestHeaderBytes = 1 << 20 // 1 MB

	// https://pkg.go.dev/net/http#Server
	// HTTP server's default timeout values.
	defaultHTTPServerReadTimeout  = 10 * time.Second
	defaultHTTPServerWriteTimeout = 30 * time.Second
	defaultHTTPServerIdleTimeout  = 120 * time.Second

	// defaultReadinessTimeout bounds the selection round a /ready probe may trigger.
	defaultReadinessTimeout = 10 * time.Second
)

/* --------------------------------- Router Config Struct -------------------------------- */

// RouterConfig contains status server configuration settings.
// See default values above.
type RouterConfig struct {
	Port                  int           `yaml:"port"`
	MaxRequestHeaderBytes int           `yaml:"max_request_header_bytes"`
	ReadTimeout           time.Duration `yaml:"read_timeout"`
	WriteTimeout          time.Duration `yaml:"write_timeout"`
	IdleTimeout           time.Duration `yaml:"idle_timeout"`
	// ReadinessTimeout bounds the selection round run by /ready when no node is selected yet.
	// It must be shorter than WriteTimeout so the probe can still be answered.
	ReadinessTimeout time.Duration `yaml:"readiness_timeout"`
}

/* --------------------------------- Router Config Private Helpers -------------------------------- */

// hydrateRouterDefaults assigns default values to RouterConfig fields if they are not set.
// Returns an error if the configuration is invalid.
func (c *RouterConfig) hydrateRouterDefaults() error {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.MaxRequestHeaderBytes == 0 {
		c.MaxRequestHeaderBytes = defaultMaxRequestHeaderBytes
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultHTTPServerReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultHTTPServerWriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaultHTTPServerIdleTimeout
	}
	if c.ReadinessTimeout == 0 {
		c.ReadinessTimeout = defaultReadinessTimeout
	}
	if c.ReadinessTimeout >= c.WriteTimeout {
		return fmt.Errorf("readiness timeout %v must be less than write timeout %v", c.ReadinessTimeout, c.WriteTimeout)
	}
	return nil
}
