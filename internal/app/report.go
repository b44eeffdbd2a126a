package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"balance-telemetry/internal/analytics"
	"balance-telemetry/internal/dashboard"
	"balance-telemetry/internal/pnl"
)

// Report prints analytics for the selected window from stored history.
func (a *App) Report(ctx context.Context, out io.Writer, opts ReportOptions) error {
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
	if err := ctrl.RefreshHistory(ctx); err != nil {
		return err
	}

	view := ctrl.Compute()
	ctrl.Publish(view)
	if !view.HasData {
		fmt.Fprintln(out, "no snapshots in window")
		return nil
	}

	writeView(out, view)
	if opts.Points {
		writePoints(out, view)
	}
	return nil
}

// Trades prints the cumulative P/L summary for the selected window.
func (a *App) Trades(ctx context.Context, out io.Writer, opts TradesOptions) error {
	spec, err := a.resolveWindow(opts.Window)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := a.newController(store, store, spec).TradeView(ctx, opts.TriggerType)
	if err != nil {
		return err
	}
	writeTradeSummary(out, spec.String(), res)
	return nil
}

func writeView(out io.Writer, view dashboard.View) {
	fmt.Fprintf(out, "Window: %s  points: %d  downsampled: %d (bucket %s)\n\n",
		view.Window, len(view.Filtered), len(view.Downsampled), view.Interval)

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "View\tStart\tEnd\tMin\tMax\tAvg\tVolatility\tP/L\tP/L%\tPer hour\tPer day")
	for _, w := range []analytics.Window{view.Total, view.Stable} {
		fmt.Fprintf(writer, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%+.2f\t%+.2f%%\t%+.2f\t%+.2f\n",
			w.Field, w.StartValue, w.EndValue, w.MinValue, w.MaxValue, w.AvgValue, w.Volatility,
			w.ProfitLoss, w.ProfitLossPercent, w.ProfitPerHour, w.ProfitPerDay)
	}
	writer.Flush()
	fmt.Fprintf(out, "\nSpan: %s -> %s (%.2fh)\n",
		view.Total.StartTime.UTC().Format(time.RFC3339), view.Total.EndTime.UTC().Format(time.RFC3339), view.Total.TotalHours)
}

func writePoints(out io.Writer, view dashboard.View) {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "\nTime (UTC)\tTotal USD\tStable USD\tRLB")
	for _, p := range view.Downsampled {
		fmt.Fprintf(writer, "%s\t%.2f\t%.2f\t%.4f\n", p.Timestamp.UTC().Format(time.RFC3339), p.TotalUSD, p.TotalUSDUSDT, p.TotalRLB)
	}
	writer.Flush()
}

func writeTradeSummary(out io.Writer, window string, res pnl.Result) {
	s := res.Summary
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Window\t%s (grid %s, %d points)\n", window, res.Window.Interval, len(res.Net))
	fmt.Fprintf(writer, "Trades\t%d (%d settled)\n", s.TradeCount, s.SettledCount)
	fmt.Fprintf(writer, "Net profit\t%s\n", s.TotalNetProfit.StringFixed(2))
	fmt.Fprintf(writer, "Raw profit\t%s\n", s.TotalRawProfit.StringFixed(2))
	fmt.Fprintf(writer, "Gas cost\t%s\n", s.GasCost.StringFixed(2))
	fmt.Fprintf(writer, "Avg net / raw\t%s / %s\n", s.AvgNetProfit.StringFixed(4), s.AvgRawProfit.StringFixed(4))
	fmt.Fprintf(writer, "Wins / losses\t%d / %d (%.1f%%)\n", s.Wins, s.Losses, s.WinRate)
	fmt.Fprintf(writer, "Avg API latency\t%.1f ms\n", s.AvgAPILatencyMs)
	fmt.Fprintf(writer, "Avg opponent gap\t%.1f ms\n", s.AvgOpponentGapMs)
	writer.Flush()
}
