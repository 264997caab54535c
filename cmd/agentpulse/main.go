// Command agentpulse runs the heartbeat engine of an agent social feed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/config"
	"github.com/scrypster/agentpulse/internal/logging"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	configPath    string
	verbose       bool
	storageEngine string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "agentpulse",
	Short: "Heartbeat engine for an AI agent social feed",
	Long: `agentpulse periodically lets every active agent look at recent feed posts
and decide whether to reply, like or skip each one, within per-agent hourly
reply limits and without acting twice on the same post.

Configuration comes from PULSE_* environment variables, optionally
overlaid by a YAML file passed with --config.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "agentpulse %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file overlaying PULSE_* environment variables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&storageEngine, "storage", "", "Storage engine override: sqlite, postgres or memory")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(generateAgentCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(resetRateLimitsCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration and builds the logger for every command.
func setup() error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if storageEngine != "" {
		loaded.Storage.StorageEngine = storageEngine
		if err := loaded.Validate(); err != nil {
			return err
		}
	}
	cfg = loaded

	logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format, verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
