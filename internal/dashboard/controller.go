// Package dashboard owns the mutable display state and runs the pure series
// transformations over snapshots of it.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"balance-telemetry/internal/analytics"
	"balance-telemetry/internal/model"
	"balance-telemetry/internal/pnl"
	"balance-telemetry/internal/series"
)

// HistorySource loads stored snapshots.
type HistorySource interface {
	FetchHistory(ctx context.Context, since *time.Time) ([]model.HistoryPoint, error)
}

// TradeSource loads trades.
type TradeSource interface {
	FetchTrades(ctx context.Context, filter model.TradeFilter) ([]model.Trade, error)
}

// ErrNoTradeSource is returned by TradeView when no trade store is wired.
var ErrNoTradeSource = errors.New("dashboard: trade source not configured")

// View is one computed display state.
type View struct {
	Generation  uint64
	ComputedAt  time.Time
	Window      series.WindowSpec
	Interval    time.Duration
	Combined    []model.HistoryPoint
	Filtered    []model.HistoryPoint
	Downsampled []model.HistoryPoint
	Total       analytics.Window
	Stable      analytics.Window
	HasData     bool
}

// Options configure a Controller.
type Options struct {
	Window series.WindowSpec
	Merger series.MergerOptions
	Now    func() time.Time
}

// Controller is the single owner of the live buffers and window state.
type Controller struct {
	history HistorySource
	trades  TradeSource
	merger  *series.Merger
	now     func() time.Time
	logger  zerolog.Logger

	mu         sync.Mutex
	window     series.WindowSpec
	generation uint64
	published  View
	onChange   func()
}

// New builds a controller. trades may be nil when P/L views are not needed.
func New(history HistorySource, trades TradeSource, opts Options, logger zerolog.Logger) *Controller {
	c := &Controller{
		history: history,
		trades:  trades,
		now:     opts.Now,
		window:  opts.Window,
		logger:  logger.With().Str("component", "dashboard").Logger(),
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.window.Preset == "" && c.window.CustomDays == 0 {
		c.window = series.WindowSpec{Preset: series.Preset24H}
	}

	mergerOpts := opts.Merger
	userCommit := mergerOpts.OnCommit
	mergerOpts.OnCommit = func(n int) {
		c.bump()
		if userCommit != nil {
			userCommit(n)
		}
	}
	c.merger = series.NewMerger(mergerOpts, logger)
	return c
}

// Subscribe starts accepting live points.
func (c *Controller) Subscribe() { c.merger.Start() }

// Unsubscribe stops live processing and discards live buffers.
func (c *Controller) Unsubscribe() { c.merger.Stop() }

// OnLivePoint is the feed handler. It only appends to the live buffer.
func (c *Controller) OnLivePoint(p model.HistoryPoint) { c.merger.Push(p) }

// OnChange registers a callback fired whenever the generation advances.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Controller) bump() {
	c.mu.Lock()
	c.generation++
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Window returns the active window.
func (c *Controller) Window() series.WindowSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window
}

// SetWindow switches the active window. Malformed input is ignored and the
// previous window retained; the returned error is informational.
func (c *Controller) SetWindow(preset string, customDays int) error {
	spec, err := series.ParseWindowSpec(preset, customDays)
	if err != nil {
		c.logger.Warn().Err(err).Str("preset", preset).Int("days", customDays).Msg("ignoring invalid window")
		return err
	}
	c.mu.Lock()
	changed := spec != c.window
	c.window = spec
	c.mu.Unlock()
	if changed {
		c.bump()
	}
	return nil
}

// RefreshHistory refetches stored snapshots for the active window. On failure
// the previous history is kept.
func (c *Controller) RefreshHistory(ctx context.Context) error {
	var since *time.Time
	if cutoff, ok := c.Window().Cutoff(c.now()); ok {
		since = &cutoff
	}

	points, err := c.history.FetchHistory(ctx, since)
	if err != nil {
		c.logger.Warn().Err(err).Bool("transient", model.IsTransient(err)).Msg("history refresh failed")
		return err
	}
	c.merger.SetHistory(points)
	c.logger.Debug().Int("points", len(points)).Msg("history refreshed")
	c.bump()
	return nil
}

// Compute runs the display pipeline over the current state. It is safe to
// call from any goroutine; apply the result with Publish.
func (c *Controller) Compute() View {
	c.mu.Lock()
	gen, spec := c.generation, c.window
	c.mu.Unlock()

	now := c.now()
	combined := c.merger.Combined()
	filtered := series.Filter(combined, spec, now)
	interval := series.BucketInterval(spec, series.Span(filtered))

	view := View{
		Generation:  gen,
		ComputedAt:  now,
		Window:      spec,
		Interval:    interval,
		Combined:    combined,
		Filtered:    filtered,
		Downsampled: series.DownsampleInterval(filtered, interval),
	}
	view.Total, view.HasData = analytics.Analyze(filtered, analytics.TotalUSD)
	view.Stable, _ = analytics.Analyze(filtered, analytics.StableUSD)
	return view
}

// Publish applies a computed view unless a newer generation exists. It reports
// whether the view was applied.
func (c *Controller) Publish(v View) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v.Generation != c.generation {
		c.logger.Debug().Uint64("view_generation", v.Generation).Uint64("current", c.generation).Msg("discarding stale view")
		return false
	}
	c.published = v
	return true
}

// Published returns the most recently applied view.
func (c *Controller) Published() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published
}

// Generation returns the current state generation.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// MergerStats exposes live buffer counters.
func (c *Controller) MergerStats() series.MergerStats {
	return c.merger.Stats()
}

// TradeView fetches trades for the active window and aggregates them.
func (c *Controller) TradeView(ctx context.Context, triggerType string) (pnl.Result, error) {
	if c.trades == nil {
		return pnl.Result{}, ErrNoTradeSource
	}
	spec := c.Window()
	now := c.now()

	filter := model.TradeFilter{TriggerType: triggerType}
	if cutoff, ok := spec.Cutoff(now); ok {
		filter.Since = &cutoff
	}
	filter.Until = &now

	trades, err := c.trades.FetchTrades(ctx, filter)
	if err != nil {
		return pnl.Result{}, err
	}

	trades = series.Filter(trades, spec, now)
	var earliest time.Time
	for _, t := range trades {
		if earliest.IsZero() || t.Timestamp.Before(earliest) {
			earliest = t.Timestamp
		}
	}
	return pnl.Aggregate(trades, series.ResolveWindow(spec, now, earliest)), nil
}
