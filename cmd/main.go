package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/spf13/cobra"

	"github.com/pokt-network/discovery/client"
	configpkg "github.com/pokt-network/discovery/config"
	"github.com/pokt-network/discovery/router"
)

// Version information injected at build time via ldflags
var (
	Version   string
	Commit    string
	BuildDate string
)

// defaultConfigPath will be appended to the location of
// the executable to get the full path to the config file.
const defaultConfigPath = "config/.config.yaml"

// Compile-time check that the client can back the status API.
var _ router.SelectionReporter = (*client.Client)(nil)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "discovery",
		Short: "Discovery node client",
		Long: `discovery picks the freshest healthy discovery node and sends requests to it,
retrying and failing over when a node errors, lags or loses data.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "override the default config path")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newSelectCmd(&configPath),
		newGetCmd(&configPath),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s commit=%s built=%s\n", versionInfo(), Commit, BuildDate)
		},
	}
}

/* -------------------- Init Helpers -------------------- */

// loadConfig reads the config file, falling back to the DISCOVERY_CONFIG environment variable.
func loadConfig(flagPath string) (configpkg.Config, string, error) {
	configPath, err := getConfigPath(flagPath)
	if err != nil {
		return configpkg.Config{}, "", err
	}

	config, err := configpkg.LoadConfigFromYAML(configPath)
	if err == nil {
		return config, configPath, nil
	}

	log.Printf(`{"level":"info","error":"%v","message":"failed to load config from filepath %v. trying DISCOVERY_CONFIG environment variable..."}`, err, configPath)
	config, envErr := configpkg.LoadConfigFromEnv()
	if envErr != nil {
		return configpkg.Config{}, "", fmt.Errorf("failed to load config from environment variable and filepath: %w", envErr)
	}
	return config, "env", nil
}

// getConfigPath returns the full path to the config file.
//
// Priority for determining config path:
// - If `--config` flag is set, use its value
// - Otherwise, use defaultConfigPath relative to executable directory
func getConfigPath(flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}

	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), defaultConfigPath), nil
}

func newLogger(config configpkg.Config) polylog.Logger {
	loggerOpts := []polylog.LoggerOption{
		polyzero.WithLevel(polyzero.ParseLevel(config.Logger.Level)),
	}
	return polyzero.NewLogger(loggerOpts...)
}

// newClient loads the config and builds a client from it.
func newClient(ctx context.Context, flagPath string) (*client.Client, configpkg.Config, polylog.Logger, error) {
	config, source, err := loadConfig(flagPath)
	if err != nil {
		return nil, configpkg.Config{}, nil, err
	}

	logger := newLogger(config)
	logger.Debug().Str("config_source", source).Msg("Loaded discovery client config")

	c, err := client.New(ctx, logger, config)
	if err != nil {
		return nil, configpkg.Config{}, nil, fmt.Errorf("failed to create discovery client: %w", err)
	}
	return c, config, logger, nil
}

func versionInfo() string {
	if Version == "" {
		return "dev"
	}
	info := Version
	if Commit != "" {
		info += " (" + Commit[:min(7, len(Commit))] + ")"
	}
	return info
}
