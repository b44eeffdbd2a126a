package cli

import (
	"github.com/spf13/cobra"

	"balance-telemetry/internal/app"
)

var watchOpts app.WatchOptions

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live balance feed and print the dashboard summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Watch(cmd.Context(), cmd.OutOrStdout(), watchOpts)
	},
}

func init() {
	addWindowFlags(watchCmd, &watchOpts.Window)
	watchCmd.Flags().DurationVar(&watchOpts.RenderEvery, "render-every", 0, "Minimum interval between summary lines (defaults to feed.debounce)")
}
