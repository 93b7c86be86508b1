package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"flowmon/internal/timeseries"
	"flowmon/pkg/models"
)

// The aggregation queries are split into pure builders (query text plus
// parameter list) and thin exec wrappers. Builders are unit-testable
// without a live store; the windowed series shapes group sparsely in SQL
// and zero-fill app-side through the timeseries engine.

func (db *DB) clock() time.Time {
	if db.now != nil {
		return db.now()
	}
	return time.Now().UTC()
}

// buildGoodMalCount splits flows into benign (no alert row) and malicious.
// days == 0 means all time.
func buildGoodMalCount(days int) (string, []any) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE ah.id IS NULL) AS good_flow_count,
			COUNT(ah.id) AS bad_flow_count
		FROM flow f
		LEFT JOIN alert_history ah ON f.id = ah.id`
	if days <= 0 {
		return query, nil
	}
	return query + `
		WHERE f.timestamp >= NOW() - make_interval(days => $1)`, []any{days}
}

// GoodMalCount returns the all-time benign/malicious split.
func (db *DB) GoodMalCount(ctx context.Context) (models.GoodMalCount, error) {
	return db.goodMalCount(ctx, 0)
}

// GoodMalCountSince restricts the split to the last `days` days.
func (db *DB) GoodMalCountSince(ctx context.Context, days int) (models.GoodMalCount, error) {
	return db.goodMalCount(ctx, clampDays(days))
}

func (db *DB) goodMalCount(ctx context.Context, days int) (models.GoodMalCount, error) {
	query, args := buildGoodMalCount(days)
	var c models.GoodMalCount
	if err := db.pool.QueryRow(ctx, query, args...).Scan(&c.GoodFlowCount, &c.BadFlowCount); err != nil {
		return models.GoodMalCount{}, fmt.Errorf("query good/mal count: %w", err)
	}
	return c, nil
}

// ProtocolCounts groups all flows by protocol name.
func (db *DB) ProtocolCounts(ctx context.Context) ([]models.ProtocolCount, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT protocol_list.name AS protocol, COUNT(flow.protocol) AS count
		FROM flow
		LEFT JOIN protocol_list ON flow.protocol = protocol_list.protocol
		GROUP BY protocol_list.protocol, protocol_list.name
		ORDER BY count DESC`)
	if err != nil {
		return nil, fmt.Errorf("query protocol counts: %w", err)
	}
	defer rows.Close()

	var counts []models.ProtocolCount
	for rows.Next() {
		var c models.ProtocolCount
		if err := rows.Scan(&c.Protocol, &c.Count); err != nil {
			return nil, fmt.Errorf("scan protocol count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return counts, nil
}

// IPCounts counts address occurrences over all flows. A flow contributes
// one count to its source and one to its destination, so a single flow
// between A and B increments both sides.
func (db *DB) IPCounts(ctx context.Context) ([]models.IPCount, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT ip, COUNT(*) AS count
		FROM (
			SELECT src_ip AS ip FROM flow
			UNION ALL
			SELECT dst_ip AS ip FROM flow
		) AS combined_ips
		GROUP BY ip
		ORDER BY ip ASC`)
	if err != nil {
		return nil, fmt.Errorf("query ip counts: %w", err)
	}
	defer rows.Close()
	return scanIPCounts(rows)
}

// IPCountsSince is the windowed variant, busiest addresses first.
func (db *DB) IPCountsSince(ctx context.Context, days int) ([]models.IPCount, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT ip, COUNT(*) AS count
		FROM (
			SELECT src_ip AS ip FROM flow WHERE timestamp >= NOW() - make_interval(days => $1)
			UNION ALL
			SELECT dst_ip AS ip FROM flow WHERE timestamp >= NOW() - make_interval(days => $1)
		) AS combined_ips
		GROUP BY ip
		ORDER BY count DESC`, clampDays(days))
	if err != nil {
		return nil, fmt.Errorf("query windowed ip counts: %w", err)
	}
	defer rows.Close()
	return scanIPCounts(rows)
}

// buildHostFlowCounts counts flows touching each registered host on either
// side within the window. The LEFT JOIN starts from host so devices with
// no traffic still report zero.
func buildHostFlowCounts(days int) (string, []any) {
	return `
		SELECT host.name AS host_name, host.ip, host.gateway,
			COALESCE(ip_counts.occurrence_count, 0) AS count
		FROM host
		LEFT JOIN (
			SELECT ip_address, COUNT(*) AS occurrence_count
			FROM (
				SELECT src_ip AS ip_address FROM flow
				WHERE timestamp >= NOW() - make_interval(days => $1)
				UNION ALL
				SELECT dst_ip AS ip_address FROM flow
				WHERE timestamp >= NOW() - make_interval(days => $1)
			) AS combined_ips
			GROUP BY ip_address
		) AS ip_counts ON host.ip = ip_counts.ip_address
		ORDER BY host.name ASC`, []any{days}
}

// buildHostMalCounts counts malicious flows per host. Attribution is
// source-side only: blame goes to the initiator, not the target.
func buildHostMalCounts(days int) (string, []any) {
	return `
		SELECT host.name AS host_name, host.ip, host.gateway,
			COALESCE(mal_counts.occurrence_count, 0) AS count
		FROM host
		LEFT JOIN (
			SELECT flow.src_ip AS ip_address, COUNT(*) AS occurrence_count
			FROM alert_history
			JOIN flow ON alert_history.id = flow.id
			WHERE flow.timestamp >= NOW() - make_interval(days => $1)
			GROUP BY flow.src_ip
		) AS mal_counts ON host.ip = mal_counts.ip_address
		ORDER BY host.name ASC`, []any{days}
}

// HostFlowCounts reports every host's windowed total flow count.
func (db *DB) HostFlowCounts(ctx context.Context, days int) ([]models.HostFlowCount, error) {
	query, args := buildHostFlowCounts(clampDays(days))
	return db.queryHostCounts(ctx, query, args)
}

// HostMalCounts reports every host's windowed malicious flow count.
func (db *DB) HostMalCounts(ctx context.Context, days int) ([]models.HostFlowCount, error) {
	query, args := buildHostMalCounts(clampDays(days))
	return db.queryHostCounts(ctx, query, args)
}

func (db *DB) queryHostCounts(ctx context.Context, query string, args []any) ([]models.HostFlowCount, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query host counts: %w", err)
	}
	defer rows.Close()

	var counts []models.HostFlowCount
	for rows.Next() {
		var c models.HostFlowCount
		if err := rows.Scan(&c.HostName, &c.IP, &c.Gateway, &c.Count); err != nil {
			return nil, fmt.Errorf("scan host count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return counts, nil
}

// buildHourlyCounts groups flows of the window into hour buckets. Only
// buckets with data come back; the caller zero-fills the gaps.
func buildHourlyCounts(since time.Time) (string, []any) {
	return `
		SELECT (FLOOR(EXTRACT(EPOCH FROM timestamp) / 3600) * 3600)::bigint AS bucket,
			COUNT(*) AS count
		FROM flow
		WHERE timestamp >= $1
		GROUP BY bucket`, []any{since.UTC()}
}

// HourlyHistogram is the rolling 24-hour flow histogram: 24 one-hour
// buckets, oldest first, ending at the running hour, empty hours zeroed.
func (db *DB) HourlyHistogram(ctx context.Context) ([]models.HourBucket, error) {
	now := db.clock()
	series := timeseries.Series(now, 23*time.Hour, time.Hour)

	query, args := buildHourlyCounts(series[0])
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query hourly histogram: %w", err)
	}
	defer rows.Close()

	sparse := make(map[int64]models.HourBucket, len(series))
	for rows.Next() {
		var bucket, count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan hourly bucket: %w", err)
		}
		sparse[bucket] = models.HourBucket{Count: count}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return timeseries.ZeroFill(series, sparse, func(start time.Time, row models.HourBucket, _ bool) models.HourBucket {
		row.BucketStart = start
		row.Hour = start.Hour()
		return row
	}), nil
}

// buildLocationFlowBuckets groups host-attributed flows of the last hour
// into 30-second buckets, splitting benign/malicious both for the given
// location and globally. Flows matching no registered host are excluded.
func buildLocationFlowBuckets(location string, since time.Time) (string, []any) {
	return `
		SELECT (FLOOR(EXTRACT(EPOCH FROM f.timestamp) / 30) * 30)::bigint AS bucket,
			COUNT(*) FILTER (WHERE ah.id IS NULL AND h.location = $1) AS location_good,
			COUNT(*) FILTER (WHERE ah.id IS NOT NULL AND h.location = $1) AS location_mal,
			COUNT(*) FILTER (WHERE ah.id IS NULL) AS all_good,
			COUNT(*) FILTER (WHERE ah.id IS NOT NULL) AS all_mal
		FROM flow f
		LEFT JOIN alert_history ah ON f.id = ah.id
		JOIN host h ON f.src_ip = h.ip OR f.dst_ip = h.ip
		WHERE f.timestamp >= $2
		GROUP BY bucket`, []any{location, since.UTC()}
}

// buildTrafficBuckets sums agent byte reports per 30-second bucket. Only
// samples landing in the first 10 seconds of a bucket are counted, so
// agents reporting on a sub-bucket cadence are not double-counted. This
// filter applies to traffic only, never to the flow counts.
func buildTrafficBuckets(since time.Time) (string, []any) {
	return `
		SELECT (FLOOR(EXTRACT(EPOCH FROM timestamp) / 30) * 30)::bigint AS bucket,
			COALESCE(SUM(traffic), 0) AS all_traffic
		FROM traffic_table
		WHERE timestamp >= $1
			AND MOD(FLOOR(EXTRACT(EPOCH FROM timestamp))::bigint, 30) < 10
		GROUP BY bucket`, []any{since.UTC()}
}

// LocationGraph is the rolling one-hour location view: 120 thirty-second
// buckets, each with the location and global benign/malicious splits plus
// the byte traffic total, gaps zero-filled.
func (db *DB) LocationGraph(ctx context.Context, location string) ([]models.LocationBucket, error) {
	now := db.clock()
	series := timeseries.Series(now, time.Hour-30*time.Second, 30*time.Second)
	since := series[0]

	sparse := make(map[int64]models.LocationBucket, len(series))

	query, args := buildLocationFlowBuckets(location, since)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query location graph flows: %w", err)
	}
	for rows.Next() {
		var bucket int64
		var b models.LocationBucket
		if err := rows.Scan(&bucket, &b.LocationGood, &b.LocationMal, &b.AllGood, &b.AllMal); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan location bucket: %w", err)
		}
		sparse[bucket] = b
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	query, args = buildTrafficBuckets(since)
	rows, err = db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query location graph traffic: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var bucket, traffic int64
		if err := rows.Scan(&bucket, &traffic); err != nil {
			return nil, fmt.Errorf("scan traffic bucket: %w", err)
		}
		b := sparse[bucket]
		b.AllTraffic = traffic
		sparse[bucket] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return timeseries.ZeroFill(series, sparse, func(start time.Time, row models.LocationBucket, _ bool) models.LocationBucket {
		row.IntervalStart = start
		return row
	}), nil
}

// buildAttackSummary counts attacks per (host, label) for hosts in one
// location. Attribution here is destination-side: the summary answers
// "which of my devices are being hit, and by what".
func buildAttackSummary(location string, since time.Time) (string, []any) {
	return `
		SELECT h.name, h.location, h.ip, h.importance,
			ah.label AS attack_label,
			COALESCE(label_list.name, '') AS attack_label_name,
			COUNT(*) AS attack_count
		FROM alert_history ah
		JOIN flow f ON ah.id = f.id
		JOIN host h ON f.dst_ip = h.ip
		LEFT JOIN label_list ON ah.label = label_list.label_id
		WHERE h.location = $1 AND f.timestamp >= $2
		GROUP BY h.name, h.location, h.ip, h.importance, ah.label, label_list.name
		ORDER BY attack_count DESC`, []any{location, since.UTC()}
}

// AttackSummary lists the per-host, per-label attack counts for a
// location since the given cutoff. A zero cutoff uses the configured
// summary window ending now.
func (db *DB) AttackSummary(ctx context.Context, location string, since time.Time, window time.Duration) ([]models.AttackSummary, error) {
	if since.IsZero() {
		since = db.clock().Add(-window)
	}
	query, args := buildAttackSummary(location, since)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attack summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.AttackSummary
	for rows.Next() {
		var s models.AttackSummary
		if err := rows.Scan(&s.Name, &s.Location, &s.IP, &s.Importance, &s.AttackLabel, &s.AttackLabelName, &s.AttackCount); err != nil {
			return nil, fmt.Errorf("scan attack summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return summaries, nil
}

// buildTopTalkers ranks addresses by symmetric occurrence count over the
// lookback and attaches the registered host name where one exists.
func buildTopTalkers(lookback time.Duration, limit int) (string, []any) {
	hours := int(lookback / time.Hour)
	if hours <= 0 {
		hours = 1
	}
	return `
		SELECT derived.ip, COALESCE(h.name, '') AS hostname, derived.total_frequency
		FROM (
			SELECT ip, COUNT(*) AS total_frequency
			FROM (
				SELECT src_ip AS ip FROM flow
				WHERE timestamp >= NOW() - make_interval(hours => $1)
				UNION ALL
				SELECT dst_ip AS ip FROM flow
				WHERE timestamp >= NOW() - make_interval(hours => $1)
			) AS union_ips
			GROUP BY ip
			ORDER BY total_frequency DESC
			LIMIT $2
		) AS derived
		LEFT JOIN host h ON derived.ip = h.ip
		ORDER BY derived.total_frequency DESC`, []any{hours, limit}
}

// TopTalkerRow is the raw store-side result; identity resolution happens
// in the geo package.
type TopTalkerRow struct {
	IP        string
	HostName  string
	Frequency int64
}

// TopTalkers returns the busiest addresses over the lookback window.
func (db *DB) TopTalkers(ctx context.Context, lookback time.Duration, limit int) ([]TopTalkerRow, error) {
	query, args := buildTopTalkers(lookback, limit)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query top talkers: %w", err)
	}
	defer rows.Close()

	var talkers []TopTalkerRow
	for rows.Next() {
		var t TopTalkerRow
		if err := rows.Scan(&t.IP, &t.HostName, &t.Frequency); err != nil {
			return nil, fmt.Errorf("scan top talker: %w", err)
		}
		talkers = append(talkers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return talkers, nil
}

func scanIPCounts(rows pgx.Rows) ([]models.IPCount, error) {
	var counts []models.IPCount
	for rows.Next() {
		var c models.IPCount
		if err := rows.Scan(&c.IP, &c.Count); err != nil {
			return nil, fmt.Errorf("scan ip count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return counts, nil
}
