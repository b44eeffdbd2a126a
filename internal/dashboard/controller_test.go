package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"balance-telemetry/internal/model"
	"balance-telemetry/internal/series"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type stubHistory struct {
	points []model.HistoryPoint
	err    error
	since  *time.Time
}

func (s *stubHistory) FetchHistory(_ context.Context, since *time.Time) ([]model.HistoryPoint, error) {
	s.since = since
	return s.points, s.err
}

type stubTrades struct {
	trades []model.Trade
	filter model.TradeFilter
}

func (s *stubTrades) FetchTrades(_ context.Context, filter model.TradeFilter) ([]model.Trade, error) {
	s.filter = filter
	return s.trades, nil
}

// immediateScheduler fires on demand.
type immediateScheduler struct {
	pending []func()
}

type noopTimer struct{}

func (noopTimer) Stop() bool { return true }

func (s *immediateScheduler) AfterFunc(_ time.Duration, f func()) series.Timer {
	s.pending = append(s.pending, f)
	return noopTimer{}
}

func (s *immediateScheduler) flush() {
	fns := s.pending
	s.pending = nil
	for _, f := range fns {
		f()
	}
}

func newController(h HistorySource, tr TradeSource, sched series.Scheduler) *Controller {
	return New(h, tr, Options{
		Window: series.WindowSpec{Preset: series.Preset24H},
		Merger: series.MergerOptions{Capacity: 50, Quantum: time.Second, Scheduler: sched},
		Now:    func() time.Time { return testNow },
	}, zerolog.Nop())
}

func TestComputePipeline(t *testing.T) {
	hist := &stubHistory{points: []model.HistoryPoint{
		{Timestamp: testNow.Add(-48 * time.Hour), TotalUSD: 1, TotalUSDUSDT: 1},
		{Timestamp: testNow.Add(-2 * time.Hour), TotalUSD: 100, TotalUSDUSDT: 50},
		{Timestamp: testNow.Add(-time.Hour), TotalUSD: 110, TotalUSDUSDT: 55},
	}}
	sched := &immediateScheduler{}
	c := newController(hist, nil, sched)
	c.Subscribe()

	if err := c.RefreshHistory(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if hist.since == nil || !hist.since.Equal(testNow.Add(-24*time.Hour)) {
		t.Fatalf("history fetch should be bounded by window cutoff, got %v", hist.since)
	}

	c.OnLivePoint(model.HistoryPoint{Timestamp: testNow.Add(-time.Minute), TotalUSD: 120, TotalUSDUSDT: 60})
	sched.flush()

	v := c.Compute()
	if !c.Publish(v) {
		t.Fatal("fresh view must be published")
	}
	if len(v.Filtered) != 3 {
		t.Fatalf("expected 3 filtered points, got %d", len(v.Filtered))
	}
	if v.Interval != 2*time.Minute {
		t.Fatalf("expected 24h preset interval, got %v", v.Interval)
	}
	if v.Total.ProfitLoss != 20 || v.Stable.ProfitLoss != 10 {
		t.Fatalf("unexpected analytics total=%v stable=%v", v.Total.ProfitLoss, v.Stable.ProfitLoss)
	}
}

func TestPublishDiscardsStaleView(t *testing.T) {
	c := newController(&stubHistory{}, nil, &immediateScheduler{})

	stale := c.Compute()
	if err := c.SetWindow("7d", 0); err != nil {
		t.Fatalf("set window: %v", err)
	}
	fresh := c.Compute()

	if !c.Publish(fresh) {
		t.Fatal("fresh view must be applied")
	}
	if c.Publish(stale) {
		t.Fatal("stale view must be discarded")
	}
	if c.Published().Window.Preset != series.Preset7D {
		t.Fatalf("published view regressed to %v", c.Published().Window)
	}
}

func TestSetWindowInvalidKeepsPrevious(t *testing.T) {
	c := newController(&stubHistory{}, nil, &immediateScheduler{})
	gen := c.Generation()

	var vErr *model.ValidationError
	if err := c.SetWindow("24h", -1); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if c.Window().Preset != series.Preset24H || c.Generation() != gen {
		t.Fatalf("invalid window must not change state")
	}

	if err := c.SetWindow("1h", 3); err != nil {
		t.Fatal(err)
	}
	if d, _ := c.Window().Lookback(); d != 72*time.Hour {
		t.Fatalf("custom days should win, got %v", d)
	}
}

func TestRefreshHistoryFailureKeepsData(t *testing.T) {
	hist := &stubHistory{points: []model.HistoryPoint{{Timestamp: testNow.Add(-time.Minute), TotalUSD: 5}}}
	c := newController(hist, nil, &immediateScheduler{})
	if err := c.RefreshHistory(context.Background()); err != nil {
		t.Fatal(err)
	}

	hist.err = model.Transient("fetch history", errors.New("connection refused"))
	if err := c.RefreshHistory(context.Background()); !model.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if len(c.Compute().Filtered) != 1 {
		t.Fatal("previous history must be retained")
	}
}

func TestTradeView(t *testing.T) {
	trades := &stubTrades{trades: []model.Trade{
		{Timestamp: testNow.Add(-30 * time.Minute), ProfitWithGasUSD: decimal.NewNullDecimal(decimal.NewFromInt(5)), RawProfitUSD: decimal.NewNullDecimal(decimal.NewFromInt(6))},
		{Timestamp: testNow.Add(-10 * time.Minute), ProfitWithGasUSD: decimal.NewNullDecimal(decimal.NewFromInt(-2)), RawProfitUSD: decimal.NewNullDecimal(decimal.NewFromInt(-1))},
	}}
	c := newController(&stubHistory{}, trades, &immediateScheduler{})
	if err := c.SetWindow("1h", 0); err != nil {
		t.Fatal(err)
	}

	res, err := c.TradeView(context.Background(), "")
	if err != nil {
		t.Fatalf("trade view: %v", err)
	}
	if trades.filter.Since == nil || !trades.filter.Since.Equal(testNow.Add(-time.Hour)) {
		t.Fatalf("unexpected fetch filter %+v", trades.filter)
	}
	last := res.Net[len(res.Net)-1]
	if !last.Value.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected cumulative net 3, got %s", last.Value)
	}
	if res.Window.Interval != 10*time.Second {
		t.Fatalf("grid must use the downsampler interval, got %v", res.Window.Interval)
	}

	if _, err := newController(&stubHistory{}, nil, &immediateScheduler{}).TradeView(context.Background(), ""); !errors.Is(err, ErrNoTradeSource) {
		t.Fatalf("expected ErrNoTradeSource, got %v", err)
	}
}

// persistingHistory stores every live point it sees, like watch mode with persistence on.
type persistingHistory struct {
	points []model.HistoryPoint
}

func (s *persistingHistory) FetchHistory(_ context.Context, since *time.Time) ([]model.HistoryPoint, error) {
	out := make([]model.HistoryPoint, 0, len(s.points))
	for _, p := range s.points {
		if since == nil || !p.Timestamp.Before(*since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestPersistedLivePointsCountOnce(t *testing.T) {
	store := &persistingHistory{}
	sched := &immediateScheduler{}
	c := New(store, nil, Options{
		Window: series.WindowSpec{Preset: series.Preset24H},
		Merger: series.MergerOptions{Capacity: 50, Quantum: time.Second, Scheduler: sched, PruneCovered: true},
		Now:    func() time.Time { return testNow },
	}, zerolog.Nop())
	c.Subscribe()

	for i, usd := range []float64{100, 105, 110} {
		p := model.HistoryPoint{Timestamp: testNow.Add(time.Duration(i-3) * time.Minute), TotalUSD: usd, TotalUSDUSDT: usd / 2}
		c.OnLivePoint(p)
		store.points = append(store.points, p)
	}
	sched.flush()

	if err := c.RefreshHistory(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	v := c.Compute()
	if len(v.Filtered) != 3 || v.Total.DataPoints != 3 {
		t.Fatalf("each snapshot must count once, filtered=%d data points=%d", len(v.Filtered), v.Total.DataPoints)
	}
	if v.Total.AvgValue != 105 {
		t.Fatalf("unexpected average %v", v.Total.AvgValue)
	}
}
