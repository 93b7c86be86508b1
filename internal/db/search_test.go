package db

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historyFilter() HistoryFilter {
	return HistoryFilter{
		Start:    time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 8, 24, 0, 0, 0, 0, time.UTC),
		Building: "B1",
		Hosts:    []string{"H1"},
	}
}

func TestBuildHistorySearchMaliciousOnly(t *testing.T) {
	f := historyFilter()
	f.LabelIDs = []int32{2}

	query, args := buildHistorySearch(f)
	require.Len(t, args, 5)
	assert.Equal(t, "B1", args[0])
	assert.Equal(t, []string{"H1"}, args[1])
	assert.Equal(t, []int32{2}, args[4])
	// Without "Good" there is no benign branch: benign rows are excluded
	// even when the host has benign traffic in range.
	assert.NotContains(t, query, "'Good'")
	assert.NotContains(t, query, "UNION ALL")
	assert.Contains(t, query, "alert_history.label = ANY($5)")
	assert.Contains(t, query, "ORDER BY timestamp ASC")
}

func TestBuildHistorySearchWithGood(t *testing.T) {
	f := historyFilter()
	f.LabelIDs = []int32{2}
	f.IncludeGood = true

	query, args := buildHistorySearch(f)
	require.Len(t, args, 5)
	assert.Contains(t, query, "UNION ALL")
	// The benign branch only admits flows with no alert row at all.
	assert.Contains(t, query, "WHERE alert_history.id IS NULL")
	assert.Contains(t, query, "'Good' AS label")
}

func TestBuildHistorySearchGoodOnly(t *testing.T) {
	f := historyFilter()
	f.IncludeGood = true

	query, args := buildHistorySearch(f)
	require.Len(t, args, 4)
	assert.NotContains(t, query, "UNION ALL")
	assert.Contains(t, query, "'Good' AS label")
}

func TestBuildHistorySearchNoLabels(t *testing.T) {
	f := historyFilter()

	query, args := buildHistorySearch(f)
	require.Len(t, args, 5)
	assert.Equal(t, []int32{}, args[4], "empty label set matches nothing")
	assert.NotContains(t, query, "UNION ALL")
}

func TestBuildHistorySearchOneRowPerFlow(t *testing.T) {
	f := historyFilter()
	f.Hosts = []string{"H1", "H2"}
	f.LabelIDs = []int32{2}
	f.IncludeGood = true

	query, _ := buildHistorySearch(f)
	// A flow between two selected hosts collapses to a single row in each
	// branch, attributed to the source-side host.
	assert.Equal(t, 2, strings.Count(query, "DISTINCT ON (f.id)"))
	assert.Contains(t, query, "COALESCE(src_host.name, dst_host.name) AS host_name")
	assert.Contains(t, query, "COALESCE(src_host.location, dst_host.location) AS location")
	// Flows touching no selected host stay out of both branches.
	assert.Equal(t, 2, strings.Count(query, "(src_host.ip IS NOT NULL OR dst_host.ip IS NOT NULL)"))
}

func TestHistoryStatusText(t *testing.T) {
	assert.Equal(t, "normal", historyStatusText("Good", -1))
	assert.Equal(t, "unhandled", historyStatusText("DDoS_LOIC", 0))
	assert.Equal(t, "handled", historyStatusText("DDoS_LOIC", 1))
	assert.Equal(t, "unknown", historyStatusText("DDoS_LOIC", 9))
}
