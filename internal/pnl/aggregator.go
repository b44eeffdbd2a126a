// Package pnl builds cumulative trade-profit series on a regular time grid.
package pnl

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"balance-telemetry/internal/model"
	"balance-telemetry/internal/series"
)

// maxGridPoints caps the grid when a caller passes an interval too fine for the window.
const maxGridPoints = 100_000

// Point is one grid sample of a cumulative series.
type Point struct {
	Time  time.Time
	Value decimal.Decimal
}

// Summary holds window statistics computed from the trades themselves.
type Summary struct {
	TradeCount       int
	SettledCount     int
	TotalNetProfit   decimal.Decimal
	TotalRawProfit   decimal.Decimal
	GasCost          decimal.Decimal
	AvgNetProfit     decimal.Decimal
	AvgRawProfit     decimal.Decimal
	Wins             int
	Losses           int
	WinRate          float64
	AvgAPILatencyMs  float64
	AvgOpponentGapMs float64
}

// Result is the aggregator output.
type Result struct {
	Window  series.Window
	Net     []Point
	Raw     []Point
	Summary Summary
}

// Aggregate filters trades to the window, sorts them and walks the grid
// Start, Start+Interval, ... <= End. Unsettled profit fields contribute nothing
// to their track. The final point always carries the full cumulative total.
func Aggregate(trades []model.Trade, w series.Window) Result {
	inWindow := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Timestamp.Before(w.Start) || t.Timestamp.After(w.End) {
			continue
		}
		inWindow = append(inWindow, t)
	}
	sort.SliceStable(inWindow, func(i, j int) bool {
		return inWindow[i].Timestamp.Before(inWindow[j].Timestamp)
	})

	res := Result{Window: w, Summary: summarize(inWindow)}
	if w.End.Before(w.Start) {
		return res
	}

	interval := w.Interval
	if span := w.End.Sub(w.Start); interval <= 0 || span/interval > maxGridPoints {
		interval = series.BucketInterval(series.WindowSpec{Preset: series.PresetAll}, span)
	}

	var net, raw decimal.Decimal
	next := 0
	apply := func(limit time.Time) {
		for next < len(inWindow) && !inWindow[next].Timestamp.After(limit) {
			t := inWindow[next]
			if t.ProfitWithGasUSD.Valid {
				net = net.Add(t.ProfitWithGasUSD.Decimal)
			}
			if t.RawProfitUSD.Valid {
				raw = raw.Add(t.RawProfitUSD.Decimal)
			}
			next++
		}
	}

	var lastTick time.Time
	for tick := w.Start; !tick.After(w.End); tick = tick.Add(interval) {
		apply(tick)
		res.Net = append(res.Net, Point{Time: tick, Value: net})
		res.Raw = append(res.Raw, Point{Time: tick, Value: raw})
		lastTick = tick
	}

	if next < len(inWindow) {
		tail := inWindow[len(inWindow)-1].Timestamp
		if tail.Before(w.End) {
			tail = w.End
		}
		apply(tail)
		if tail.After(lastTick) {
			res.Net = append(res.Net, Point{Time: tail, Value: net})
			res.Raw = append(res.Raw, Point{Time: tail, Value: raw})
		} else {
			res.Net[len(res.Net)-1].Value = net
			res.Raw[len(res.Raw)-1].Value = raw
		}
	}

	return res
}

// IsWin reports a won trade: an explicit win, or any trade without an opponent.
func IsWin(t model.Trade) bool {
	return !t.Opponent || (t.Win != nil && *t.Win)
}

// IsLoss reports an explicit loss against an opponent.
func IsLoss(t model.Trade) bool {
	return t.Opponent && t.Win != nil && !*t.Win
}

func summarize(trades []model.Trade) Summary {
	s := Summary{TradeCount: len(trades)}

	var netCount, rawCount int64
	var latencySum, latencyCount, gapSum, gapCount int64
	for _, t := range trades {
		if t.ProfitWithGasUSD.Valid {
			s.TotalNetProfit = s.TotalNetProfit.Add(t.ProfitWithGasUSD.Decimal)
			netCount++
		}
		if t.RawProfitUSD.Valid {
			s.TotalRawProfit = s.TotalRawProfit.Add(t.RawProfitUSD.Decimal)
			rawCount++
		}
		if t.Settled() {
			s.SettledCount++
		}

		switch {
		case IsWin(t):
			s.Wins++
		case IsLoss(t):
			s.Losses++
		}

		if t.APICallDurationMs != nil {
			latencySum += *t.APICallDurationMs
			latencyCount++
		}
		if t.OpponentTimeGapMs != nil {
			gapSum += *t.OpponentTimeGapMs
			gapCount++
		}
	}

	s.GasCost = s.TotalRawProfit.Sub(s.TotalNetProfit)
	if netCount > 0 {
		s.AvgNetProfit = s.TotalNetProfit.Div(decimal.NewFromInt(netCount))
	}
	if rawCount > 0 {
		s.AvgRawProfit = s.TotalRawProfit.Div(decimal.NewFromInt(rawCount))
	}
	if decided := s.Wins + s.Losses; decided > 0 {
		s.WinRate = float64(s.Wins) / float64(decided) * 100
	}
	if latencyCount > 0 {
		s.AvgAPILatencyMs = float64(latencySum) / float64(latencyCount)
	}
	if gapCount > 0 {
		s.AvgOpponentGapMs = float64(gapSum) / float64(gapCount)
	}
	return s
}
