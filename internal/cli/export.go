package cli

import (
	"github.com/spf13/cobra"

	"balance-telemetry/internal/app"
)

var exportOpts app.ExportOptions

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the downsampled balance series and P/L grid as CSV and/or PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), exportOpts)
	},
}

func init() {
	addWindowFlags(exportCmd, &exportOpts.Window)
	exportCmd.Flags().StringVar(&exportOpts.CSVPath, "csv", "", "Path to write balance CSV")
	exportCmd.Flags().StringVar(&exportOpts.PNGPath, "png", "", "Path to write balance PNG chart")
	exportCmd.Flags().StringVar(&exportOpts.PnLCSVPath, "pnl-csv", "", "Path to write cumulative P/L CSV")
	exportCmd.Flags().StringVar(&exportOpts.PnLPNGPath, "pnl-png", "", "Path to write cumulative P/L PNG chart")
	exportCmd.Flags().StringVar(&exportOpts.TriggerType, "trigger", "", "Only include trades with this trigger type")
}
