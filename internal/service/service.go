// Package service runs the long-lived watch loop: live feed ingestion,
// scheduled history refreshes, optional persistence and view publishing.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"balance-telemetry/internal/dashboard"
	"balance-telemetry/internal/feed"
	"balance-telemetry/internal/model"
	"balance-telemetry/internal/scheduler"
)

const defaultPersistQueue = 256

// FeedRunner is the live feed as seen by the service.
type FeedRunner interface {
	Run(ctx context.Context, handler feed.Handler) error
	Connected() bool
}

// SnapshotWriter persists live points.
type SnapshotWriter interface {
	InsertSnapshot(ctx context.Context, point model.HistoryPoint) (int64, error)
}

// Options tune the service.
type Options struct {
	RenderEvery  time.Duration
	PersistQueue int
}

// Service orchestrates feed, refresh scheduler, persistence and rendering
// around one dashboard controller.
type Service struct {
	ctrl      *dashboard.Controller
	feed      FeedRunner
	scheduler *scheduler.Scheduler
	writer    SnapshotWriter
	out       io.Writer
	opts      Options
	logger    zerolog.Logger

	changed chan struct{}
	persist chan model.HistoryPoint
}

// New constructs the watch service. feed and writer may be nil.
func New(ctrl *dashboard.Controller, live FeedRunner, sched *scheduler.Scheduler, writer SnapshotWriter, out io.Writer, opts Options, logger zerolog.Logger) *Service {
	if opts.RenderEvery <= 0 {
		opts.RenderEvery = time.Second
	}
	if opts.PersistQueue <= 0 {
		opts.PersistQueue = defaultPersistQueue
	}

	s := &Service{
		ctrl:      ctrl,
		feed:      live,
		scheduler: sched,
		writer:    writer,
		out:       out,
		opts:      opts,
		logger:    logger.With().Str("component", "service").Logger(),
		changed:   make(chan struct{}, 1),
	}
	if writer != nil {
		s.persist = make(chan model.HistoryPoint, opts.PersistQueue)
	}
	ctrl.OnChange(s.markChanged)
	return s
}

// Run blocks until ctx is cancelled or a component fails.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	s.ctrl.Subscribe()
	defer s.ctrl.Unsubscribe()

	g, gctx := errgroup.WithContext(ctx)

	if s.feed != nil {
		g.Go(func() error {
			return ignoreCancel(s.feed.Run(gctx, s.HandlePoint))
		})
	}
	g.Go(func() error {
		return ignoreCancel(s.scheduler.Run(gctx, s.ProcessTick))
	})
	if s.persist != nil {
		g.Go(func() error {
			s.persistLoop(gctx)
			return nil
		})
	}
	g.Go(func() error {
		s.renderLoop(gctx)
		return nil
	})

	return g.Wait()
}

// HandlePoint is the feed handler. It never blocks on I/O.
func (s *Service) HandlePoint(point model.HistoryPoint) {
	s.ctrl.OnLivePoint(point)
	if s.persist == nil {
		return
	}
	select {
	case s.persist <- point:
	default:
		s.logger.Warn().Time("timestamp", point.Timestamp).Msg("persist queue full; dropping live point")
	}
}

// ProcessTick refetches stored history for the active window.
func (s *Service) ProcessTick(ctx context.Context, at time.Time) error {
	if err := s.ctrl.RefreshHistory(ctx); err != nil {
		return fmt.Errorf("refresh history at %s: %w", at.Format(time.RFC3339), err)
	}
	return nil
}

// RenderOnce computes and publishes a view, printing it when applied.
func (s *Service) RenderOnce() bool {
	view := s.ctrl.Compute()
	if !s.ctrl.Publish(view) {
		return false
	}
	connected := s.feed != nil && s.feed.Connected()
	writeLine(s.out, view, connected, s.ctrl.MergerStats().Live)
	return true
}

func (s *Service) markChanged() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Service) persistLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case point := <-s.persist:
			id, err := s.writer.InsertSnapshot(ctx, point)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Error().Err(err).Time("timestamp", point.Timestamp).Msg("failed to persist live point")
				}
				continue
			}
			s.logger.Debug().Int64("id", id).Msg("live point persisted")
		}
	}
}

func (s *Service) renderLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.RenderEvery)
	defer ticker.Stop()

	dirty := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.changed:
			dirty = true
		case <-ticker.C:
			if dirty && s.RenderOnce() {
				dirty = false
			}
		}
	}
}

func writeLine(out io.Writer, view dashboard.View, connected bool, live int) {
	status := "offline"
	if connected {
		status = "live"
	}
	stamp := view.ComputedAt.Format(time.TimeOnly)
	if !view.HasData {
		fmt.Fprintf(out, "%s [%s] %s: no data\n", stamp, status, view.Window)
		return
	}
	fmt.Fprintf(out, "%s [%s] %s: total $%.2f (%+.2f, %+.2f%%) stable $%.2f points %d/%d bucket %s live %d\n",
		stamp, status, view.Window,
		view.Total.EndValue, view.Total.ProfitLoss, view.Total.ProfitLossPercent,
		view.Stable.EndValue, len(view.Downsampled), len(view.Filtered), view.Interval, live)
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
