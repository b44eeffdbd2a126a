package app

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"balance-telemetry/internal/feed"
	"balance-telemetry/internal/scheduler"
	"balance-telemetry/internal/service"
)

// Watch follows the live feed, refreshes stored history on a schedule and
// prints a summary line for every published view until interrupted.
func (a *App) Watch(ctx context.Context, out io.Writer, opts WatchOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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

	var live *feed.Client
	var runner service.FeedRunner
	if a.Config.Feed.URL != "" {
		live = feed.New(feed.Options{
			URL:            a.Config.Feed.URL,
			ReconnectDelay: a.Config.Feed.ReconnectDelay,
			PingInterval:   a.Config.Feed.PingInterval,
			PongTimeout:    a.Config.Feed.PongTimeout,
		}, a.Logger)
		runner = live
	} else {
		a.Logger.Warn().Msg("feed.url not configured; showing stored history only")
	}

	var writer service.SnapshotWriter
	if a.Config.Feed.Persist {
		writer = store
	}

	sched := scheduler.New(scheduler.Options{
		Interval:        a.Config.Dashboard.RefreshInterval,
		AlignToInterval: a.Config.Dashboard.AlignRefresh,
		Immediate:       true,
	}, a.Logger)

	renderEvery := opts.RenderEvery
	if renderEvery <= 0 {
		renderEvery = a.Config.Feed.Debounce
	}

	svc := service.New(ctrl, runner, sched, writer, out, service.Options{RenderEvery: renderEvery}, a.Logger)

	a.Logger.Info().
		Str("window", spec.String()).
		Bool("feed", runner != nil).
		Bool("persist", writer != nil).
		Msg("watch started")

	err = svc.Run(ctx)
	if live != nil {
		a.Logger.Info().
			Int64("received", live.Received()).
			Int64("malformed", live.Malformed()).
			Msg("watch stopped")
	}
	return err
}
