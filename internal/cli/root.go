package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"balance-telemetry/internal/app"
	"balance-telemetry/internal/config"
	"balance-telemetry/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "telemetryctl",
	Short:         "Balance and trade telemetry: live dashboard, analytics and snapshot hygiene",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil || cmd.Name() == versionCmd.Name() {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(tradesCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(deleteSnapshotCmd)
	rootCmd.AddCommand(deleteTradeCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}

// addWindowFlags binds --range and --days on commands that analyse a window.
func addWindowFlags(cmd *cobra.Command, opts *app.WindowOptions) {
	cmd.Flags().StringVar(&opts.Range, "range", "", "Preset window: 1h, 6h, 24h, 7d, 30d or all (defaults to config)")
	cmd.Flags().IntVar(&opts.Days, "days", 0, "Custom window in days; overrides --range when positive")
}
