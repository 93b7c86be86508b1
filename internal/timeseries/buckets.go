// Package timeseries generates the gap-free bucket sequences that back
// every windowed aggregation. The store only reports buckets that contain
// data; consumers left-join their sparse results onto a Series so that
// empty intervals are emitted with zero-valued metrics instead of being
// dropped.
package timeseries

import "time"

// Bucket floors t to the start of its width-sized interval, in UTC.
// The bucket of a timestamp is floor(unix/width)*width.
func Bucket(t time.Time, width time.Duration) time.Time {
	sec := int64(width / time.Second)
	if sec <= 0 {
		sec = 1
	}
	return time.Unix((t.Unix()/sec)*sec, 0).UTC()
}

// Series returns the ascending bucket starts covering [now-window, now]:
// from Bucket(now-window) through Bucket(now) inclusive, each width apart.
// For width-aligned windows that is window/width+1 buckets.
func Series(now time.Time, window, width time.Duration) []time.Time {
	first := Bucket(now.Add(-window), width)
	last := Bucket(now, width)
	n := int(last.Sub(first)/width) + 1
	out := make([]time.Time, 0, n)
	for t := first; !t.After(last); t = t.Add(width) {
		out = append(out, t)
	}
	return out
}

// ZeroFill walks the full bucket series and emits one value per bucket,
// taking rows from sparse where present and zero values elsewhere. The
// series is always the left side of the join.
func ZeroFill[T any](series []time.Time, sparse map[int64]T, fill func(start time.Time, row T, present bool) T) []T {
	out := make([]T, 0, len(series))
	for _, start := range series {
		row, ok := sparse[start.Unix()]
		out = append(out, fill(start, row, ok))
	}
	return out
}
