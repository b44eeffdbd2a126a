package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"balance-telemetry/internal/dashboard"
	"balance-telemetry/internal/feed"
	"balance-telemetry/internal/model"
	"balance-telemetry/internal/scheduler"
	"balance-telemetry/internal/series"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeHistory struct {
	points []model.HistoryPoint
	err    error
	calls  int
}

func (f *fakeHistory) FetchHistory(context.Context, *time.Time) ([]model.HistoryPoint, error) {
	f.calls++
	return f.points, f.err
}

type fakeWriter struct {
	mu     sync.Mutex
	points []model.HistoryPoint
}

func (f *fakeWriter) InsertSnapshot(_ context.Context, p model.HistoryPoint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
	return int64(len(f.points)), nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

type fakeFeed struct {
	points []model.HistoryPoint
}

func (f *fakeFeed) Run(ctx context.Context, handler feed.Handler) error {
	for _, p := range f.points {
		handler(p)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeFeed) Connected() bool { return true }

func newController(history dashboard.HistorySource) *dashboard.Controller {
	return dashboard.New(history, nil, dashboard.Options{
		Window: series.WindowSpec{Preset: series.Preset24H},
		Merger: series.MergerOptions{Quantum: 10 * time.Millisecond},
		Now:    func() time.Time { return testNow },
	}, zerolog.Nop())
}

func point(offset time.Duration, total float64) model.HistoryPoint {
	return model.HistoryPoint{Timestamp: testNow.Add(-offset), TotalUSD: total, TotalUSDUSDT: total / 2}
}

func TestProcessTickRefreshesHistory(t *testing.T) {
	history := &fakeHistory{points: []model.HistoryPoint{point(2*time.Hour, 100), point(time.Hour, 110)}}
	ctrl := newController(history)
	var out bytes.Buffer
	svc := New(ctrl, nil, nil, nil, &out, Options{}, zerolog.Nop())

	if err := svc.ProcessTick(context.Background(), testNow); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if history.calls != 1 {
		t.Fatalf("expected one fetch, got %d", history.calls)
	}
	if !svc.RenderOnce() {
		t.Fatal("expected view to be published")
	}
	if !strings.Contains(out.String(), "total $110.00") {
		t.Fatalf("unexpected render output %q", out.String())
	}
	if !strings.Contains(out.String(), "[offline]") {
		t.Fatalf("expected offline status without feed: %q", out.String())
	}
}

func TestProcessTickWrapsFailure(t *testing.T) {
	history := &fakeHistory{err: model.Transient("fetch history", errors.New("down"))}
	svc := New(newController(history), nil, nil, nil, &bytes.Buffer{}, Options{}, zerolog.Nop())

	err := svc.ProcessTick(context.Background(), testNow)
	if err == nil || !model.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestRunRequiresScheduler(t *testing.T) {
	svc := New(newController(&fakeHistory{}), nil, nil, nil, &bytes.Buffer{}, Options{}, zerolog.Nop())
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected error without scheduler")
	}
}

func TestRunPersistsLivePoints(t *testing.T) {
	live := &fakeFeed{points: []model.HistoryPoint{point(time.Minute, 120), point(30*time.Second, 121)}}
	writer := &fakeWriter{}
	sched := scheduler.New(scheduler.Options{Interval: time.Hour, Immediate: true}, zerolog.Nop())
	var out bytes.Buffer
	svc := New(newController(&fakeHistory{}), live, sched, writer, &out, Options{RenderEvery: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for writer.count() < 2 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("expected 2 persisted points, got %d", writer.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
