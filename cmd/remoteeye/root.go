package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/config"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv overrides the config path when --config is not given.
const configEnv = "REMOTEEYE_CONFIG"

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "remoteeye",
		Short:         "RemoteEye relay: connects paired phones with their controllers",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config file (default $"+configEnv+" or "+defaultConfigPath+")")

	load := func() (*config.Config, string, error) {
		return loadConfig(configPath)
	}

	rootCmd.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newPairCmd(load),
		newVersionCmd(),
	)
	return rootCmd
}

// configLoader resolves and loads the configuration for a subcommand.
type configLoader func() (*config.Config, string, error)

// loadConfig loads the configuration from the explicit path, then
// $REMOTEEYE_CONFIG, then the default path. A missing default file falls
// back to built-in defaults plus environment overrides.
//
// Returns:
//   - *config.Config: validated configuration
//   - string: the file it was read from, or "" for built-in defaults
//   - error: if the file cannot be read or the result is invalid
func loadConfig(explicit string) (*config.Config, string, error) {
	path := explicit
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, path, fmt.Errorf("loading config: %w", err)
		}
		return cfg, path, nil
	}

	cfg, err := config.Load(defaultConfigPath)
	if err == nil {
		return cfg, defaultConfigPath, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, defaultConfigPath, fmt.Errorf("loading config: %w", err)
	}

	cfg, err = config.Default()
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, "", nil
}
