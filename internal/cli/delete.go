package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var deleteSnapshotCmd = &cobra.Command{
	Use:   "delete-snapshot <id>",
	Short: "Delete one stored balance snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return getApp().DeleteSnapshot(cmd.Context(), cmd.OutOrStdout(), id)
	},
}

var deleteTradeCmd = &cobra.Command{
	Use:   "delete-trade <id>",
	Short: "Delete one stored trade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return getApp().DeleteTrade(cmd.Context(), cmd.OutOrStdout(), id)
	},
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be a positive integer", raw)
	}
	return id, nil
}
