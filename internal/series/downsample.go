package series

import (
	"sort"
	"time"

	"balance-telemetry/internal/model"
)

var presetInterval = map[Preset]time.Duration{
	Preset1H:  10 * time.Second,
	Preset6H:  time.Minute,
	Preset24H: 2 * time.Minute,
	Preset7D:  15 * time.Minute,
	Preset30D: time.Hour,
}

// BucketInterval picks the bucket width for a window. span is only consulted for
// the "all" preset, where it should be the span of the filtered data.
func BucketInterval(spec WindowSpec, span time.Duration) time.Duration {
	if spec.CustomDays > 0 {
		return dayTier(time.Duration(spec.CustomDays) * day)
	}
	if d, ok := presetInterval[spec.Preset]; ok {
		return d
	}
	return dayTier(span)
}

func dayTier(span time.Duration) time.Duration {
	switch {
	case span <= day:
		return time.Minute
	case span <= 7*day:
		return 5 * time.Minute
	case span <= 30*day:
		return 15 * time.Minute
	default:
		return time.Hour
	}
}

// Span returns the distance between the earliest and latest timestamps.
func Span(points []model.HistoryPoint) time.Duration {
	if len(points) < 2 {
		return 0
	}
	first, last := points[0].Timestamp, points[0].Timestamp
	for _, p := range points[1:] {
		if p.Timestamp.Before(first) {
			first = p.Timestamp
		}
		if p.Timestamp.After(last) {
			last = p.Timestamp
		}
	}
	return last.Sub(first)
}

// Downsample collapses points into one representative per time bucket.
// Within a bucket the last point seen in input order wins. Output is ascending by timestamp.
func Downsample(points []model.HistoryPoint, spec WindowSpec) []model.HistoryPoint {
	if len(points) == 0 {
		return []model.HistoryPoint{}
	}
	return DownsampleInterval(points, BucketInterval(spec, Span(points)))
}

// DownsampleInterval buckets points with an explicit width.
func DownsampleInterval(points []model.HistoryPoint, interval time.Duration) []model.HistoryPoint {
	intervalMs := interval.Milliseconds()
	if intervalMs <= 0 {
		out := make([]model.HistoryPoint, len(points))
		copy(out, points)
		return out
	}

	buckets := make(map[int64]model.HistoryPoint, len(points))
	for _, p := range points {
		buckets[floorDiv(p.Timestamp.UnixMilli(), intervalMs)] = p
	}

	out := make([]model.HistoryPoint, 0, len(buckets))
	for _, p := range buckets {
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Window is a concrete time range plus the grid step used for charting it.
type Window struct {
	Start    time.Time
	End      time.Time
	Interval time.Duration
}

// ResolveWindow turns a spec into a concrete window ending at now. For the
// unbounded range the window starts at earliest, the first observed data time.
func ResolveWindow(spec WindowSpec, now, earliest time.Time) Window {
	start, bounded := spec.Cutoff(now)
	if !bounded {
		start = earliest
		if start.IsZero() || start.After(now) {
			start = now
		}
	}
	return Window{
		Start:    start,
		End:      now,
		Interval: BucketInterval(spec, now.Sub(start)),
	}
}
