// Package analytics computes profit/loss summaries over a balance series.
package analytics

import (
	"fmt"
	"math"
	"time"

	"balance-telemetry/internal/model"
)

// Field selects which balance value is analysed.
type Field int

const (
	TotalUSD Field = iota
	StableUSD
	TotalRLB
)

func (f Field) String() string {
	switch f {
	case StableUSD:
		return "total_usd_usdt"
	case TotalRLB:
		return "total_rlb"
	default:
		return "total_usd"
	}
}

// ParseField maps a column name to a Field.
func ParseField(name string) (Field, error) {
	switch name {
	case "", "total_usd", "usd":
		return TotalUSD, nil
	case "total_usd_usdt", "stable", "usdt":
		return StableUSD, nil
	case "total_rlb", "rlb":
		return TotalRLB, nil
	}
	return TotalUSD, &model.ValidationError{Field: "field", Reason: fmt.Sprintf("unknown value field %q", name)}
}

// Value extracts the field from a point.
func (f Field) Value(p model.HistoryPoint) float64 {
	switch f {
	case StableUSD:
		return p.TotalUSDUSDT
	case TotalRLB:
		return p.TotalRLB
	default:
		return p.TotalUSD
	}
}

// Window summarises one field over a filtered series.
type Window struct {
	Field             Field
	StartTime         time.Time
	EndTime           time.Time
	TotalHours        float64
	StartValue        float64
	EndValue          float64
	MinValue          float64
	MaxValue          float64
	AvgValue          float64
	Volatility        float64
	ProfitLoss        float64
	ProfitLossPercent float64
	ProfitPerHour     float64
	ProfitPerDay      float64
	DataPoints        int
}

// Analyze summarises field over points. It reports false, with a zero Window,
// when points is empty. Start and end are the first and last elements as given.
func Analyze(points []model.HistoryPoint, field Field) (Window, bool) {
	if len(points) == 0 {
		return Window{Field: field}, false
	}

	first, last := points[0], points[len(points)-1]
	w := Window{
		Field:      field,
		StartTime:  first.Timestamp,
		EndTime:    last.Timestamp,
		StartValue: field.Value(first),
		EndValue:   field.Value(last),
		MinValue:   math.Inf(1),
		MaxValue:   math.Inf(-1),
		DataPoints: len(points),
	}

	var sum float64
	for _, p := range points {
		v := field.Value(p)
		sum += v
		w.MinValue = math.Min(w.MinValue, v)
		w.MaxValue = math.Max(w.MaxValue, v)
	}
	w.AvgValue = sum / float64(len(points))

	var sq float64
	for _, p := range points {
		d := field.Value(p) - w.AvgValue
		sq += d * d
	}
	w.Volatility = math.Sqrt(sq / float64(len(points)))

	w.ProfitLoss = w.EndValue - w.StartValue
	if w.StartValue != 0 {
		w.ProfitLossPercent = w.ProfitLoss / w.StartValue * 100
	}

	w.TotalHours = float64(w.EndTime.Sub(w.StartTime).Milliseconds()) / 3_600_000
	if w.TotalHours > 0 {
		w.ProfitPerHour = w.ProfitLoss / w.TotalHours
	}
	w.ProfitPerDay = w.ProfitPerHour * 24

	return w, true
}
