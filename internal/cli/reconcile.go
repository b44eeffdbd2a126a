package cli

import (
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare the latest stored RLB total with the on-chain balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Reconcile(cmd.Context(), cmd.OutOrStdout())
	},
}
