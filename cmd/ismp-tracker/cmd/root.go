package cmd

import (
	"os"
	"path/filepath"

	"cosmossdk.io/log"
	"github.com/celestiaorg/ismp/pkg/ismp/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	FlagHome     = "home"
	FlagLogLevel = "log-level"
)

// DefaultHome is the directory holding the configuration file unless --home is given.
var DefaultHome = func() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ismp"
	}
	return filepath.Join(home, ".ismp")
}()

// NewRootCmd creates the root command of ismp-tracker.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ismp-tracker",
		Short:        "Track ISMP requests from their source through the hub to their destination",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String(FlagHome, DefaultHome, "The directory holding "+config.FileName)
	rootCmd.PersistentFlags().String(FlagLogLevel, "", "Override the log level of the configuration file")
	rootCmd.AddCommand(
		initConfigCmd(),
		statusCmd(),
		timeoutCmd(),
	)
	return rootCmd
}

func configPath(cmd *cobra.Command) (string, error) {
	home, err := cmd.Flags().GetString(FlagHome)
	if err != nil {
		return "", err
	}
	return filepath.Join(home, config.FileName), nil
}

// loadConfig loads the configuration of the home directory and builds the logger it asks for.
func loadConfig(cmd *cobra.Command) (config.Config, log.Logger, error) {
	path, err := configPath(cmd)
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}

	if cmd.Flags().Changed(FlagLogLevel) {
		cfg.LogLevel, _ = cmd.Flags().GetString(FlagLogLevel)
		if err := cfg.Validate(); err != nil {
			return config.Config{}, nil, err
		}
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}

	logger := log.NewLogger(cmd.ErrOrStderr(), log.LevelOption(level))
	return cfg, logger, nil
}
