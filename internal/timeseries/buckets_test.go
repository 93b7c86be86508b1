package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketFloorsToWidth(t *testing.T) {
	ts := time.Date(2025, 8, 24, 14, 47, 43, 120, time.UTC)

	assert.Equal(t, time.Date(2025, 8, 24, 14, 0, 0, 0, time.UTC), Bucket(ts, time.Hour))
	assert.Equal(t, time.Date(2025, 8, 24, 14, 47, 30, 0, time.UTC), Bucket(ts, 30*time.Second))
	// Already aligned timestamps map to themselves.
	aligned := time.Date(2025, 8, 24, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, aligned, Bucket(aligned, time.Hour))
}

func TestBucketUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	local := time.Date(2025, 8, 24, 22, 30, 0, 0, loc)
	got := Bucket(local, time.Hour)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, time.Date(2025, 8, 24, 14, 0, 0, 0, time.UTC), got)
}

func TestSeriesLengthAndOrder(t *testing.T) {
	cases := []struct {
		name   string
		window time.Duration
		width  time.Duration
		want   int
	}{
		{"24h hourly", 24 * time.Hour, time.Hour, 25},
		{"1h by 30s", time.Hour, 30 * time.Second, 121},
		{"7d daily", 7 * 24 * time.Hour, 24 * time.Hour, 8},
	}
	now := time.Date(2025, 8, 24, 14, 47, 43, 0, time.UTC)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			series := Series(now, tc.window, tc.width)
			require.Len(t, series, tc.want)
			assert.Equal(t, Bucket(now.Add(-tc.window), tc.width), series[0])
			assert.Equal(t, Bucket(now, tc.width), series[len(series)-1])
			for i := 1; i < len(series); i++ {
				assert.Equal(t, tc.width, series[i].Sub(series[i-1]), "series must be strictly ascending by one width")
			}
		})
	}
}

func TestSeriesCoversCurrentBucketInclusive(t *testing.T) {
	// 23 hours back truncated, through the current hour: the dashboard
	// histogram shape (oldest first, ending at the running hour).
	now := time.Date(2025, 8, 24, 13, 40, 0, 0, time.UTC)
	series := Series(now, 23*time.Hour, time.Hour)
	require.Len(t, series, 24)
	assert.Equal(t, time.Date(2025, 8, 23, 14, 0, 0, 0, time.UTC), series[0])
	assert.Equal(t, time.Date(2025, 8, 24, 13, 0, 0, 0, time.UTC), series[23])
}

func TestZeroFillEmitsEmptyBuckets(t *testing.T) {
	now := time.Date(2025, 8, 24, 10, 0, 0, 0, time.UTC)
	series := Series(now, 5*time.Hour, time.Hour)
	require.Len(t, series, 6)

	type row struct {
		hour  int
		count int64
	}
	sparse := map[int64]row{
		series[1].Unix(): {hour: series[1].Hour(), count: 7},
		series[4].Unix(): {hour: series[4].Hour(), count: 2},
	}
	filled := ZeroFill(series, sparse, func(start time.Time, r row, present bool) row {
		if !present {
			return row{hour: start.Hour()}
		}
		return r
	})

	require.Len(t, filled, 6)
	assert.Equal(t, int64(0), filled[0].count)
	assert.Equal(t, int64(7), filled[1].count)
	assert.Equal(t, int64(0), filled[2].count)
	assert.Equal(t, int64(0), filled[3].count)
	assert.Equal(t, int64(2), filled[4].count)
	assert.Equal(t, int64(0), filled[5].count)
	// Gap hours are present with zero counts, never omitted.
	for i, r := range filled {
		assert.Equal(t, series[i].Hour(), r.hour)
	}
}
