package app

import (
	"context"
	"errors"
	"io"

	"balance-telemetry/internal/export"
	"balance-telemetry/internal/pnl"
)

// Export renders the downsampled balance series and the P/L grid.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" && opts.PnLCSVPath == "" && opts.PnLPNGPath == "" {
		return errors.New("at least one of --csv, --png, --pnl-csv or --pnl-png must be provided")
	}

	spec, err := a.resolveWindow(opts.Window)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	ctrl := a.newController(store, store, spec)
	size := export.ChartSize{Width: a.Config.Export.Width, Height: a.Config.Export.Height}

	if opts.CSVPath != "" || opts.PNGPath != "" {
		if err := ctrl.RefreshHistory(ctx); err != nil {
			return err
		}
		view := ctrl.Compute()
		a.Logger.Info().
			Int("filtered", len(view.Filtered)).
			Int("exported", len(view.Downsampled)).
			Dur("bucket", view.Interval).
			Msg("exporting balance series")

		if opts.CSVPath != "" {
			if err := export.ToFile(opts.CSVPath, func(w io.Writer) error {
				return export.WriteHistoryCSV(w, view.Downsampled)
			}); err != nil {
				return err
			}
		}
		if opts.PNGPath != "" {
			if len(view.Downsampled) < 2 {
				a.Logger.Warn().Msg("not enough points to chart balance series")
			} else if err := export.ToFile(opts.PNGPath, func(w io.Writer) error {
				return export.RenderHistoryPNG(w, view.Downsampled, size)
			}); err != nil {
				return err
			}
		}
	}

	if opts.PnLCSVPath == "" && opts.PnLPNGPath == "" {
		return nil
	}

	res, err := ctrl.TradeView(ctx, opts.TriggerType)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("grid_points", len(res.Net)).Int("trades", res.Summary.TradeCount).Msg("exporting P/L series")

	if opts.PnLCSVPath != "" {
		if err := export.ToFile(opts.PnLCSVPath, func(w io.Writer) error {
			return export.WritePnLCSV(w, res)
		}); err != nil {
			return err
		}
	}
	if opts.PnLPNGPath != "" {
		return writePnLChart(opts.PnLPNGPath, res, size)
	}
	return nil
}

func writePnLChart(path string, res pnl.Result, size export.ChartSize) error {
	if len(res.Net) < 2 {
		return errors.New("not enough grid points to chart P/L")
	}
	return export.ToFile(path, func(w io.Writer) error {
		return export.RenderPnLPNG(w, res, size)
	})
}
