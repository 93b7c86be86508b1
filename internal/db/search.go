package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"flowmon/pkg/models"
)

// HistoryFilter is the validated input of the history search. Hosts is a
// positive selection: an empty list selects nothing, not everything.
// IncludeGood is set when the caller asked for the "Good" pseudo-label.
type HistoryFilter struct {
	Start       time.Time
	End         time.Time
	Building    string
	Hosts       []string
	LabelIDs    []int32
	IncludeGood bool
}

// buildHistorySearch composes the history query from the malicious branch
// (alerts whose label was requested) and, when "Good" was requested, the
// benign branch (flows with no alert). Both branches restrict to flows of
// the selected hosts in the selected building and emit one row per flow,
// attributed to the source-side host when both endpoints are selected;
// the union is ordered by timestamp for determinism. Benign rows carry
// status -1 and are localized by the scanner.
func buildHistorySearch(f HistoryFilter) (string, []any) {
	args := []any{f.Building, f.Hosts, f.Start.UTC(), f.End.UTC()}

	const targetJoins = `
		LEFT JOIN host src_host ON f.src_ip = src_host.ip
			AND src_host.location = $1 AND src_host.name = ANY($2)
		LEFT JOIN host dst_host ON f.dst_ip = dst_host.ip
			AND dst_host.location = $1 AND dst_host.name = ANY($2)`

	malicious := `
		SELECT DISTINCT ON (f.id)
			COALESCE(src_host.name, dst_host.name) AS host_name,
			COALESCE(src_host.location, dst_host.location) AS location,
			f.timestamp, f.src_ip, f.dst_ip,
			protocol_list.name AS protocol, label_list.name AS label,
			alert_history.status AS status, alert_history.score AS score
		FROM flow f` + targetJoins + `
		JOIN alert_history ON f.id = alert_history.id
		JOIN label_list ON alert_history.label = label_list.label_id
		LEFT JOIN protocol_list ON f.protocol = protocol_list.protocol
		WHERE (src_host.ip IS NOT NULL OR dst_host.ip IS NOT NULL)
			AND f.timestamp >= $3 AND f.timestamp <= $4
			AND alert_history.label = ANY($5)
		ORDER BY f.id`

	benign := `
		SELECT DISTINCT ON (f.id)
			COALESCE(src_host.name, dst_host.name) AS host_name,
			COALESCE(src_host.location, dst_host.location) AS location,
			f.timestamp, f.src_ip, f.dst_ip,
			protocol_list.name AS protocol, 'Good' AS label,
			-1 AS status, 0::double precision AS score
		FROM flow f` + targetJoins + `
		LEFT JOIN alert_history ON f.id = alert_history.id
		LEFT JOIN protocol_list ON f.protocol = protocol_list.protocol
		WHERE alert_history.id IS NULL
			AND (src_host.ip IS NOT NULL OR dst_host.ip IS NOT NULL)
			AND f.timestamp >= $3 AND f.timestamp <= $4
		ORDER BY f.id`

	var query string
	switch {
	case len(f.LabelIDs) > 0 && f.IncludeGood:
		args = append(args, f.LabelIDs)
		query = "(" + malicious + ")\nUNION ALL\n(" + benign + ")"
	case len(f.LabelIDs) > 0:
		args = append(args, f.LabelIDs)
		query = "(" + malicious + ")"
	case f.IncludeGood:
		query = "(" + benign + ")"
	default:
		// No labels requested at all: nothing can match.
		query = "(" + malicious + ")"
		args = append(args, []int32{})
	}
	return query + "\nORDER BY timestamp ASC", args
}

// SearchHistory runs the composed history query.
func (db *DB) SearchHistory(ctx context.Context, f HistoryFilter) ([]models.HistoryRow, error) {
	if len(f.Hosts) == 0 {
		// An empty host selection is a valid request with an empty result;
		// skip the round trip.
		return []models.HistoryRow{}, nil
	}

	query, args := buildHistorySearch(f)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history search: %w", err)
	}
	defer rows.Close()

	results := []models.HistoryRow{}
	for rows.Next() {
		var r models.HistoryRow
		var status int
		var score float64
		if err := rows.Scan(
			&r.HostName, &r.Location, &r.Timestamp, &r.SrcIP, &r.DstIP,
			&r.Protocol, &r.Label, &status, &score,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		r.Status = historyStatusText(r.Label, status)
		if r.Label == "Good" {
			r.Score = "-"
		} else {
			r.Score = strconv.FormatFloat(score, 'f', -1, 64)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}

func historyStatusText(label string, status int) string {
	if label == "Good" {
		return "normal"
	}
	switch status {
	case 0:
		return "unhandled"
	case 1:
		return "handled"
	default:
		return "unknown"
	}
}
