package db

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGoodMalCount(t *testing.T) {
	query, args := buildGoodMalCount(0)
	assert.Nil(t, args)
	assert.NotContains(t, query, "WHERE", "all-time variant must not filter")
	assert.Contains(t, query, "FILTER (WHERE ah.id IS NULL)")

	query, args = buildGoodMalCount(7)
	require.Equal(t, []any{7}, args)
	assert.Contains(t, query, "make_interval(days => $1)")
}

func TestBuildHostFlowCountsStartsFromHost(t *testing.T) {
	query, args := buildHostFlowCounts(3)
	require.Equal(t, []any{3}, args)
	// Left-join semantics from host, so zero-traffic hosts still appear.
	assert.Contains(t, query, "FROM host\n\t\tLEFT JOIN")
	assert.Contains(t, query, "COALESCE(ip_counts.occurrence_count, 0)")
	// Symmetric counting: both endpoint columns feed the union.
	assert.Contains(t, query, "SELECT src_ip AS ip_address")
	assert.Contains(t, query, "SELECT dst_ip AS ip_address")
	assert.Contains(t, query, "UNION ALL")
}

func TestBuildHostMalCountsUsesSourceAttributionOnly(t *testing.T) {
	// Malicious per-host counts deliberately attribute to the initiator:
	// only src_ip is counted, unlike the symmetric total counts.
	query, args := buildHostMalCounts(3)
	require.Equal(t, []any{3}, args)
	assert.Contains(t, query, "flow.src_ip AS ip_address")
	assert.NotContains(t, query, "dst_ip AS ip_address")
	assert.Contains(t, query, "JOIN flow ON alert_history.id = flow.id")
}

func TestBuildHourlyCounts(t *testing.T) {
	since := time.Date(2025, 8, 23, 15, 0, 0, 0, time.UTC)
	query, args := buildHourlyCounts(since)
	require.Equal(t, []any{since}, args)
	assert.Contains(t, query, "/ 3600) * 3600")
	assert.Contains(t, query, "GROUP BY bucket")
}

func TestBuildLocationFlowBuckets(t *testing.T) {
	since := time.Date(2025, 8, 24, 13, 0, 0, 0, time.UTC)
	query, args := buildLocationFlowBuckets("B1", since)
	require.Equal(t, []any{"B1", since}, args)
	// Flows must touch a registered host to be attributed at all.
	assert.Contains(t, query, "JOIN host h ON f.src_ip = h.ip OR f.dst_ip = h.ip")
	// Both the location-scoped and the global splits come from one pass.
	assert.Contains(t, query, "h.location = $1) AS location_good")
	assert.Contains(t, query, "AS all_mal")
}

func TestBuildTrafficBucketsKeepsFirstTenSecondsFilter(t *testing.T) {
	since := time.Date(2025, 8, 24, 13, 0, 0, 0, time.UTC)
	query, args := buildTrafficBuckets(since)
	require.Equal(t, []any{since}, args)
	// Only samples in the first 10 seconds of each 30-second bucket count,
	// so sub-bucket reporting cadences are not double-counted.
	assert.Contains(t, query, ", 30) < 10")
	assert.Contains(t, query, "FROM traffic_table")
}

func TestBuildAttackSummary(t *testing.T) {
	since := time.Date(2025, 8, 24, 13, 0, 0, 0, time.UTC)
	query, args := buildAttackSummary("資電大樓", since)
	require.Equal(t, []any{"資電大樓", since}, args)
	// Destination-side attribution: the summary reports attacked devices.
	assert.Contains(t, query, "JOIN host h ON f.dst_ip = h.ip")
	assert.Contains(t, query, "GROUP BY h.name, h.location, h.ip, h.importance, ah.label, label_list.name")
	// Rows carry the label name alongside the id; uncatalogued ids
	// degrade to an empty name rather than dropping the row.
	assert.Contains(t, query, "LEFT JOIN label_list ON ah.label = label_list.label_id")
	assert.Contains(t, query, "COALESCE(label_list.name, '') AS attack_label_name")
}

func TestBuildTopTalkers(t *testing.T) {
	query, args := buildTopTalkers(324*time.Hour, 20)
	require.Equal(t, []any{324, 20}, args)
	assert.Contains(t, query, "LIMIT $2")
	assert.Contains(t, query, "LEFT JOIN host h ON derived.ip = h.ip")

	_, args = buildTopTalkers(0, 5)
	assert.Equal(t, []any{1, 5}, args, "lookback floors to one hour")
}

func TestClampDays(t *testing.T) {
	assert.Equal(t, 1, clampDays(0))
	assert.Equal(t, 1, clampDays(-3))
	assert.Equal(t, 7, clampDays(7))
	assert.Equal(t, 366, clampDays(1000))
}

func TestBuildersAreParameterized(t *testing.T) {
	// No builder may interpolate caller data into the SQL text.
	since := time.Now()
	for name, query := range map[string]string{
		"goodMal":   first(buildGoodMalCount(7)),
		"hostFlow":  first(buildHostFlowCounts(7)),
		"hostMal":   first(buildHostMalCounts(7)),
		"hourly":    first(buildHourlyCounts(since)),
		"locFlow":   first(buildLocationFlowBuckets("loc'; DROP TABLE flow;--", since)),
		"traffic":   first(buildTrafficBuckets(since)),
		"attackSum": first(buildAttackSummary("loc'; DROP TABLE flow;--", since)),
		"top":       first(buildTopTalkers(time.Hour, 10)),
	} {
		assert.NotContains(t, query, "DROP TABLE", name)
		assert.False(t, strings.Contains(query, "%s") || strings.Contains(query, "%d"),
			"%s must not be a format template", name)
	}
}

func first(query string, _ []any) string { return query }
