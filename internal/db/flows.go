package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"flowmon/pkg/models"
)

// enrichedFlowColumns is the shared projection of every flow-centric read:
// the flow joined to its optional alert plus both catalogs. A flow with no
// alert row is benign, so the label collapses to "Good" and score/status
// to zero.
const enrichedFlowColumns = `
	flow.uuid, flow.timestamp, flow.src_ip, flow.src_port, flow.dst_ip, flow.dst_port,
	protocol_list.name AS protocol,
	COALESCE(label_list.name, 'Good') AS label,
	COALESCE(alert_history.score, 0) AS score,
	COALESCE(alert_history.status, 0) AS status`

const enrichedFlowJoins = `
	FROM flow
	LEFT JOIN alert_history ON flow.id = alert_history.id
	LEFT JOIN label_list ON alert_history.label = label_list.label_id
	LEFT JOIN protocol_list ON flow.protocol = protocol_list.protocol`

// AllFlows returns every flow, oldest first.
func (db *DB) AllFlows(ctx context.Context) ([]models.FlowRecord, error) {
	query := "SELECT" + enrichedFlowColumns + enrichedFlowJoins + " ORDER BY flow.id ASC"
	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query flows: %w", err)
	}
	defer rows.Close()
	return scanFlowRecords(rows)
}

// FlowByUUID returns the single flow identified by its external UUID.
// The row is returned even when neither endpoint is a known host.
func (db *DB) FlowByUUID(ctx context.Context, uuid string) (*models.FlowRecord, error) {
	query := "SELECT" + enrichedFlowColumns + enrichedFlowJoins + " WHERE flow.uuid = $1"
	rows, err := db.pool.Query(ctx, query, uuid)
	if err != nil {
		return nil, fmt.Errorf("query flow by uuid: %w", err)
	}
	defer rows.Close()
	flows, err := scanFlowRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(flows) == 0 {
		return nil, nil
	}
	return &flows[0], nil
}

// FlowsByIP returns the flows touching ip on either side.
func (db *DB) FlowsByIP(ctx context.Context, ip string) ([]models.FlowRecord, error) {
	query := "SELECT" + enrichedFlowColumns + enrichedFlowJoins +
		" WHERE flow.src_ip = $1 OR flow.dst_ip = $1 ORDER BY flow.id ASC"
	rows, err := db.pool.Query(ctx, query, ip)
	if err != nil {
		return nil, fmt.Errorf("query flows by ip: %w", err)
	}
	defer rows.Close()
	return scanFlowRecords(rows)
}

// FlowsSince returns the flows of the last `days` days, oldest first.
func (db *DB) FlowsSince(ctx context.Context, days int) ([]models.FlowRecord, error) {
	query := "SELECT" + enrichedFlowColumns + enrichedFlowJoins +
		" WHERE flow.timestamp >= NOW() - make_interval(days => $1) ORDER BY flow.timestamp ASC"
	rows, err := db.pool.Query(ctx, query, clampDays(days))
	if err != nil {
		return nil, fmt.Errorf("query flows since: %w", err)
	}
	defer rows.Close()
	return scanFlowRecords(rows)
}

// FlowsSinceByIP combines the day window with an endpoint filter.
func (db *DB) FlowsSinceByIP(ctx context.Context, days int, ip string) ([]models.FlowRecord, error) {
	query := "SELECT" + enrichedFlowColumns + enrichedFlowJoins +
		` WHERE flow.timestamp >= NOW() - make_interval(days => $1)
		AND (flow.src_ip = $2 OR flow.dst_ip = $2)
		ORDER BY flow.timestamp ASC`
	rows, err := db.pool.Query(ctx, query, clampDays(days), ip)
	if err != nil {
		return nil, fmt.Errorf("query flows since by ip: %w", err)
	}
	defer rows.Close()
	return scanFlowRecords(rows)
}

// InsertFlow records one classified flow and, when alert is non-nil, its
// alert annotation. Both writes run in one transaction so a malicious
// flow can never surface as benign because of a crash between them.
func (db *DB) InsertFlow(ctx context.Context, flow models.FlowRecord, protocol int, alert *models.IngestRecord) (int64, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin flow insert: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO flow (uuid, timestamp, src_ip, src_port, dst_ip, dst_port, protocol)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		flow.UUID, flow.Timestamp.UTC(), flow.SrcIP, flow.SrcPort, flow.DstIP, flow.DstPort, protocol,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert flow: %w", err)
	}

	if alert != nil && alert.Label != nil {
		_, err = tx.Exec(ctx,
			`INSERT INTO alert_history (id, label, score, status, pcap)
			VALUES ($1, $2, $3, 0, $4)`,
			id, *alert.Label, alert.Score, alert.Pcap,
		)
		if err != nil {
			return 0, fmt.Errorf("insert alert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit flow insert: %w", err)
	}
	return id, nil
}

// AllAlerts returns every malicious flow joined to the host registry. A
// flow matching no registered host is excluded from this view entirely.
func (db *DB) AllAlerts(ctx context.Context) ([]models.AlertRecord, error) {
	return db.queryAlerts(ctx, "")
}

// UnhandledAlerts returns the host-joined malicious flows an operator has
// not marked handled yet.
func (db *DB) UnhandledAlerts(ctx context.Context) ([]models.AlertRecord, error) {
	return db.queryAlerts(ctx, "AND alert_history.status = 0")
}

// buildAlerts emits exactly one row per alert. Both endpoints join
// independently so a flow between two registered hosts still collapses
// to a single row, attributed to the source-side host when both match.
func buildAlerts(extra string) string {
	return fmt.Sprintf(`
		SELECT * FROM (
			SELECT DISTINCT ON (flow.id)
				flow.uuid,
				COALESCE(src_host.name, dst_host.name) AS hostname,
				flow.timestamp,
				flow.src_ip, flow.src_port, flow.dst_ip, flow.dst_port,
				protocol_list.name AS protocol,
				label_list.name AS label,
				alert_history.score, alert_history.status
			FROM alert_history
			JOIN flow ON alert_history.id = flow.id
			LEFT JOIN host src_host ON flow.src_ip = src_host.ip
			LEFT JOIN host dst_host ON flow.dst_ip = dst_host.ip
			LEFT JOIN label_list ON alert_history.label = label_list.label_id
			LEFT JOIN protocol_list ON flow.protocol = protocol_list.protocol
			WHERE (src_host.ip IS NOT NULL OR dst_host.ip IS NOT NULL) %s
			ORDER BY flow.id
		) alerts
		ORDER BY alerts.timestamp ASC`, extra)
}

func (db *DB) queryAlerts(ctx context.Context, extra string) ([]models.AlertRecord, error) {
	rows, err := db.pool.Query(ctx, buildAlerts(extra))
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertRecord
	for rows.Next() {
		var a models.AlertRecord
		if err := rows.Scan(
			&a.UUID, &a.HostName, &a.Timestamp,
			&a.SrcIP, &a.SrcPort, &a.DstIP, &a.DstPort,
			&a.Protocol, &a.Label, &a.Score, &a.Status,
		); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return alerts, nil
}

// MarkAlertHandled flips the alert of the given flow to the handled tier.
// Returns false when no alert exists for that UUID.
func (db *DB) MarkAlertHandled(ctx context.Context, uuid string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE alert_history SET status = 1
		FROM flow
		WHERE alert_history.id = flow.id AND flow.uuid = $1`,
		uuid)
	if err != nil {
		return false, fmt.Errorf("mark alert handled: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanFlowRecords(rows pgx.Rows) ([]models.FlowRecord, error) {
	var flows []models.FlowRecord
	for rows.Next() {
		var f models.FlowRecord
		if err := rows.Scan(
			&f.UUID, &f.Timestamp, &f.SrcIP, &f.SrcPort, &f.DstIP, &f.DstPort,
			&f.Protocol, &f.Label, &f.Score, &f.Status,
		); err != nil {
			return nil, fmt.Errorf("scan flow row: %w", err)
		}
		f.Timestamp = f.Timestamp.UTC()
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return flows, nil
}

// clampDays guards the day-window path parameters; dashboards never ask
// for more than a year back.
func clampDays(days int) int {
	if days < 1 {
		return 1
	}
	if days > 366 {
		return 366
	}
	return days
}
