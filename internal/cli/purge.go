package cli

import (
	"github.com/spf13/cobra"

	"balance-telemetry/internal/app"
)

var purgeOpts app.PurgeOptions

var purgeCmd = &cobra.Command{
	Use:   "purge-anomalies",
	Short: "Detect and delete anomalous balance snapshots until none remain",
	Long: `Scans stored snapshots for jumps larger than the configured thresholds,
asks for confirmation once, then deletes page after page until a scan comes
back clean or the iteration cap is reached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().PurgeAnomalies(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), purgeOpts)
	},
}

func init() {
	purgeCmd.Flags().BoolVarP(&purgeOpts.Yes, "yes", "y", false, "Skip the confirmation prompt")
	purgeCmd.Flags().Float64Var(&purgeOpts.StableDelta, "stable-delta", 0, "Override the stable USD jump threshold")
	purgeCmd.Flags().Float64Var(&purgeOpts.TokenDelta, "token-delta", 0, "Override the RLB jump threshold")
	purgeCmd.Flags().IntVar(&purgeOpts.PageSize, "page-size", 0, "Candidates fetched per iteration (defaults to config)")
	purgeCmd.Flags().IntVar(&purgeOpts.MaxIterations, "max-iterations", 0, "Iteration cap (defaults to config)")
}
