package app

import (
	"context"
	"fmt"
	"io"
)

// DeleteSnapshot removes one stored snapshot by id.
func (a *App) DeleteSnapshot(ctx context.Context, out io.Writer, id int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.DeleteOne(ctx, id); err != nil {
		return fmt.Errorf("delete snapshot %d: %w", id, err)
	}
	a.Logger.Info().Int64("id", id).Msg("snapshot deleted")
	fmt.Fprintf(out, "snapshot %d deleted\n", id)
	return nil
}

// DeleteTrade removes one stored trade by id.
func (a *App) DeleteTrade(ctx context.Context, out io.Writer, id int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.DeleteTrade(ctx, id); err != nil {
		return fmt.Errorf("delete trade %d: %w", id, err)
	}
	a.Logger.Info().Int64("id", id).Msg("trade deleted")
	fmt.Fprintf(out, "trade %d deleted\n", id)
	return nil
}
