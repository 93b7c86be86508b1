package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"flowmon/pkg/models"
)

// Labels returns the attack-type catalog. The "Good" pseudo-label is
// never stored here; it is synthesized by the flow joins.
func (db *DB) Labels(ctx context.Context) ([]models.Label, error) {
	rows, err := db.pool.Query(ctx, `SELECT label_id, name FROM label_list ORDER BY label_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	var labels []models.Label
	for rows.Next() {
		var l models.Label
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return labels, nil
}

// LabelNameByID resolves one label id, "" when absent.
func (db *DB) LabelNameByID(ctx context.Context, id int) (string, error) {
	var name string
	err := db.pool.QueryRow(ctx, `SELECT name FROM label_list WHERE label_id = $1`, id).Scan(&name)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query label name: %w", err)
	}
	return name, nil
}

// ProtocolNameByID resolves one protocol code, "" when absent.
func (db *DB) ProtocolNameByID(ctx context.Context, code int) (string, error) {
	var name string
	err := db.pool.QueryRow(ctx, `SELECT name FROM protocol_list WHERE protocol = $1`, code).Scan(&name)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query protocol name: %w", err)
	}
	return name, nil
}

// Protocols returns the protocol catalog.
func (db *DB) Protocols(ctx context.Context) ([]models.Protocol, error) {
	rows, err := db.pool.Query(ctx, `SELECT protocol, name FROM protocol_list ORDER BY protocol ASC`)
	if err != nil {
		return nil, fmt.Errorf("query protocols: %w", err)
	}
	defer rows.Close()

	var protocols []models.Protocol
	for rows.Next() {
		var p models.Protocol
		if err := rows.Scan(&p.Code, &p.Name); err != nil {
			return nil, fmt.Errorf("scan protocol: %w", err)
		}
		protocols = append(protocols, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return protocols, nil
}
