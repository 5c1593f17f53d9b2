package main

import (
	"fmt"
	"os"

	"HodlFarm/internal/config"
	"HodlFarm/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

const (
	programName       = "hodlfarm"
	defaultConfigPath = "configs/config.yaml"
)

var (
	globalFlags = struct {
		debug     bool
		logFormat string
	}{}
	configFile string

	cfg    *config.Config
	logger zerolog.Logger
)

// commonRun loads configuration and builds the logger shared by every command.
func commonRun() error {
	path := configFile
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigPath
	}

	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if globalFlags.logFormat != "" {
		cfg.Logging.Format = globalFlags.logFormat
	}
	if globalFlags.debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return err
	}
	logger = logger.With().Str("component", programName).Logger()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...interface{}) {
		logger.Debug().Msgf(format, v...)
	})); err != nil {
		logger.Warn().Err(err).Msg("set GOMAXPROCS")
	}
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Collateral staking farm paying a reward token per second",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return commonRun()
		},
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file (default $CONFIG_PATH or "+defaultConfigPath+")")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.logFormat, "log-format", "", "log format: plain or json")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(stakeCommand())
	rootCmd.AddCommand(unstakeCommand())
	rootCmd.AddCommand(withdrawCommand())
	rootCmd.AddCommand(replenishCommand())
	rootCmd.AddCommand(positionCommand())
	rootCmd.AddCommand(poolCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
