// Package series holds the display pipeline for balance snapshots: merging live
// and historical points, range filtering and bucketed downsampling.
package series

import (
	"fmt"
	"strings"
	"time"

	"balance-telemetry/internal/model"
)

// Preset names a fixed lookback range.
type Preset string

const (
	Preset1H  Preset = "1h"
	Preset6H  Preset = "6h"
	Preset24H Preset = "24h"
	Preset7D  Preset = "7d"
	Preset30D Preset = "30d"
	PresetAll Preset = "all"
)

const day = 24 * time.Hour

var presetLookback = map[Preset]time.Duration{
	Preset1H:  time.Hour,
	Preset6H:  6 * time.Hour,
	Preset24H: day,
	Preset7D:  7 * day,
	Preset30D: 30 * day,
}

// WindowSpec selects the active range. CustomDays takes priority over Preset when positive.
type WindowSpec struct {
	Preset     Preset
	CustomDays int
}

// ParseWindowSpec validates a preset name and an optional custom day count.
// A zero day count means "use the preset".
func ParseWindowSpec(preset string, customDays int) (WindowSpec, error) {
	if customDays < 0 {
		return WindowSpec{}, &model.ValidationError{Field: "days", Reason: fmt.Sprintf("must be positive, got %d", customDays)}
	}
	p := Preset(strings.ToLower(strings.TrimSpace(preset)))
	if p == "" {
		p = Preset24H
	}
	if _, ok := presetLookback[p]; !ok && p != PresetAll {
		return WindowSpec{}, &model.ValidationError{Field: "range", Reason: fmt.Sprintf("unknown preset %q", preset)}
	}
	return WindowSpec{Preset: p, CustomDays: customDays}, nil
}

// Lookback returns the window duration. The boolean is false for the unbounded "all" range.
func (w WindowSpec) Lookback() (time.Duration, bool) {
	if w.CustomDays > 0 {
		return time.Duration(w.CustomDays) * day, true
	}
	d, ok := presetLookback[w.Preset]
	return d, ok
}

// Cutoff returns the inclusive lower bound of the window relative to now.
func (w WindowSpec) Cutoff(now time.Time) (time.Time, bool) {
	d, ok := w.Lookback()
	if !ok {
		return time.Time{}, false
	}
	return now.Add(-d), true
}

func (w WindowSpec) String() string {
	if w.CustomDays > 0 {
		return fmt.Sprintf("%dd(custom)", w.CustomDays)
	}
	return string(w.Preset)
}

// Timestamped is anything placed on the time axis.
type Timestamped interface {
	At() time.Time
}

// Filter returns the items whose timestamp is at or after the window cutoff,
// preserving input order. The input is never modified.
func Filter[T Timestamped](items []T, spec WindowSpec, now time.Time) []T {
	cutoff, bounded := spec.Cutoff(now)
	out := make([]T, 0, len(items))
	for _, item := range items {
		if bounded && item.At().Before(cutoff) {
			continue
		}
		out = append(out, item)
	}
	return out
}
