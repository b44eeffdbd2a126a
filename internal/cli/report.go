package cli

import (
	"github.com/spf13/cobra"

	"balance-telemetry/internal/app"
)

var (
	reportOpts app.ReportOptions
	tradesOpts app.TradesOptions
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print balance analytics for a window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Report(cmd.Context(), cmd.OutOrStdout(), reportOpts)
	},
}

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Print the cumulative trade P/L summary for a window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Trades(cmd.Context(), cmd.OutOrStdout(), tradesOpts)
	},
}

func init() {
	addWindowFlags(reportCmd, &reportOpts.Window)
	reportCmd.Flags().BoolVar(&reportOpts.Points, "points", false, "Also print the downsampled points")

	addWindowFlags(tradesCmd, &tradesOpts.Window)
	tradesCmd.Flags().StringVar(&tradesOpts.TriggerType, "trigger", "", "Only include trades with this trigger type")
}
