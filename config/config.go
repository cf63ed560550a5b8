package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pokt-network/discovery/gateway"
	"github.com/pokt-network/discovery/selector"
	"github.com/pokt-network/discovery/selector/storage"
)

// envConfigVar holds a full YAML config when no config file is available.
const envConfigVar = "DISCOVERY_CONFIG"

/* ---------------------------------  Discovery Config Struct -------------------------------- */

// Config contains everything needed to run a discovery client,
// parsed from a YAML config file.
type Config struct {
	Registry  RegistryConfig         `yaml:"registry_config"`
	Selection selector.Config        `yaml:"selection_config"`
	Executor  gateway.ExecutorConfig `yaml:"executor_config"`

	// Storage persists the current selection across restarts. Disabled by default.
	Storage storage.StorageConfig `yaml:"storage_config"`

	Router  RouterConfig  `yaml:"router_config"`
	Logger  LoggerConfig  `yaml:"logger_config"`
	Metrics MetricsConfig `yaml:"metrics_config"`

	// Global Redis configuration - used by the selection store when
	// storage_config.type is "redis" and no store-specific redis block is set.
	RedisConfig *storage.RedisConfig `yaml:"redis_config,omitempty"`
}

type EnvConfigError struct {
	Description string
}

func (c EnvConfigError) Error() string {
	return c.Description
}

// LoadConfigFromYAML reads a YAML configuration file from the specified path
// and unmarshals its content into a Config instance.
func LoadConfigFromYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return parseConfig(data)
}

// LoadConfigFromEnv reads the YAML configuration from the DISCOVERY_CONFIG environment variable.
func LoadConfigFromEnv() (Config, error) {
	conf := os.Getenv(envConfigVar)
	if conf == "" {
		return Config{}, EnvConfigError{Description: "Failed to load config from " + envConfigVar + " environment variable"}
	}
	return parseConfig([]byte(conf))
}

func parseConfig(data []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, err
	}

	if err := config.hydrateDefaults(); err != nil {
		return Config{}, err
	}

	return config, config.validate()
}

/* --------------------------------- Config Hydration Helpers -------------------------------- */

func (c *Config) hydrateDefaults() error {
	if err := c.Router.hydrateRouterDefaults(); err != nil {
		return fmt.Errorf("invalid router config: %w", err)
	}
	c.Logger.hydrateLoggerDefaults()
	c.Metrics.hydrateMetricsDefaults()
	c.Registry.hydrateRegistryDefaults()
	c.Selection.HydrateDefaults()
	c.Executor.HydrateDefaults()

	if c.Storage.Type == storage.StoreTypeRedis && c.Storage.Redis == nil {
		redisConfig := storage.DefaultRedisConfig()
		if c.RedisConfig != nil {
			redisConfig = *c.RedisConfig
		}
		c.Storage.Redis = &redisConfig
	}
	if c.Storage.Redis != nil {
		c.Storage.Redis.HydrateDefaults()
	}
	return nil
}

/* --------------------------------- Config Validation Helpers -------------------------------- */

func (c *Config) validate() error {
	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("invalid registry config: %w", err)
	}
	if err := c.Selection.Validate(); err != nil {
		return fmt.Errorf("invalid selection config: %w", err)
	}
	if err := c.Executor.Validate(); err != nil {
		return fmt.Errorf("invalid executor config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	return nil
}
