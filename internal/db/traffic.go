package db

import (
	"context"
	"fmt"

	"flowmon/pkg/models"
)

// InsertTrafficSample records one agent byte-count report.
func (db *DB) InsertTrafficSample(ctx context.Context, bytes int64, intervalSeconds int) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO traffic_table (traffic, interval_seconds, timestamp) VALUES ($1, $2, NOW())`,
		bytes, intervalSeconds)
	if err != nil {
		return fmt.Errorf("insert traffic sample: %w", err)
	}
	return nil
}

// TrafficHourSum totals the reported bytes of the last hour.
func (db *DB) TrafficHourSum(ctx context.Context) (models.TrafficSum, error) {
	var sum models.TrafficSum
	err := db.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(traffic), 0) AS total_traffic
		FROM traffic_table
		WHERE timestamp >= NOW() - INTERVAL '1 hour'`).Scan(&sum.TotalTraffic)
	if err != nil {
		return models.TrafficSum{}, fmt.Errorf("query traffic hour sum: %w", err)
	}
	return sum, nil
}

// RegisterDevice stores a push token for a device name.
func (db *DB) RegisterDevice(ctx context.Context, deviceName, token string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO notification_token (device_name, token) VALUES ($1, $2)`,
		deviceName, token)
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

// NotificationTokens returns every registered push token.
func (db *DB) NotificationTokens(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx, `SELECT token FROM notification_token`)
	if err != nil {
		return nil, fmt.Errorf("query notification tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return tokens, nil
}
