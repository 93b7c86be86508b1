package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"flowmon/pkg/models"
)

const (
	// Host status tiers. Independent of alert_history.status.
	HostStatusNormal = 0
	HostStatusWarn   = 1
	HostStatusAlert  = 2
)

// AllHosts returns the full device registry.
func (db *DB) AllHosts(ctx context.Context) ([]models.Host, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, name, location, ip, gateway, mac_addr, status, department, importance
		FROM host
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query hosts: %w", err)
	}
	defer rows.Close()
	return scanHosts(rows)
}

// HostByIP returns the first registered host with the given address, or
// nil when none matches. Address uniqueness is expected but not enforced.
func (db *DB) HostByIP(ctx context.Context, ip string) (*models.Host, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, name, location, ip, gateway, mac_addr, status, department, importance
		FROM host
		WHERE ip = $1
		LIMIT 1`, ip)
	if err != nil {
		return nil, fmt.Errorf("query host by ip: %w", err)
	}
	defer rows.Close()
	hosts, err := scanHosts(rows)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, nil
	}
	return &hosts[0], nil
}

// HostNameByIP returns the registered name of the address, or "" when the
// address is unknown.
func (db *DB) HostNameByIP(ctx context.Context, ip string) (string, error) {
	var name string
	err := db.pool.QueryRow(ctx, `SELECT name FROM host WHERE ip = $1 LIMIT 1`, ip).Scan(&name)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query host name: %w", err)
	}
	return name, nil
}

// HostNamesByBuilding lists the device names registered at one location.
func (db *DB) HostNamesByBuilding(ctx context.Context, building string) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT name FROM host WHERE location = $1 ORDER BY name ASC`, building)
	if err != nil {
		return nil, fmt.Errorf("query host names by building: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan host name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return names, nil
}

// Buildings lists the distinct locations present in the registry.
func (db *DB) Buildings(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx, `SELECT location FROM host GROUP BY location ORDER BY location ASC`)
	if err != nil {
		return nil, fmt.Errorf("query buildings: %w", err)
	}
	defer rows.Close()

	var buildings []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scan building: %w", err)
		}
		buildings = append(buildings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return buildings, nil
}

// HostStatusByLocation rolls host status tiers up per location.
func (db *DB) HostStatusByLocation(ctx context.Context) ([]models.LocationStatus, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT location,
			COUNT(*) FILTER (WHERE status = 0) AS normal,
			COUNT(*) FILTER (WHERE status = 1) AS warn,
			COUNT(*) FILTER (WHERE status = 2) AS alert
		FROM host
		GROUP BY location
		ORDER BY location ASC`)
	if err != nil {
		return nil, fmt.Errorf("query host status: %w", err)
	}
	defer rows.Close()

	var statuses []models.LocationStatus
	for rows.Next() {
		var s models.LocationStatus
		if err := rows.Scan(&s.Location, &s.Normal, &s.Warn, &s.Alert); err != nil {
			return nil, fmt.Errorf("scan location status: %w", err)
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return statuses, nil
}

// InsertHost registers a new device and returns its id.
func (db *DB) InsertHost(ctx context.Context, h models.Host) (int64, error) {
	var id int64
	err := db.pool.QueryRow(ctx, `
		INSERT INTO host (name, location, ip, gateway, mac_addr, status, department, importance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		h.Name, h.Location, h.IP, h.Gateway, h.MACAddr, h.Status, h.Department, h.Importance,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert host: %w", err)
	}
	return id, nil
}

// SetHostStatus flips a device's status tier by address. Returns false
// when the address is not registered.
func (db *DB) SetHostStatus(ctx context.Context, ip string, status int) (bool, error) {
	tag, err := db.pool.Exec(ctx, `UPDATE host SET status = $2 WHERE ip = $1`, ip, status)
	if err != nil {
		return false, fmt.Errorf("set host status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanHosts(rows pgx.Rows) ([]models.Host, error) {
	var hosts []models.Host
	for rows.Next() {
		var h models.Host
		if err := rows.Scan(
			&h.ID, &h.Name, &h.Location, &h.IP, &h.Gateway,
			&h.MACAddr, &h.Status, &h.Department, &h.Importance,
		); err != nil {
			return nil, fmt.Errorf("scan host row: %w", err)
		}
		hosts = append(hosts, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return hosts, nil
}
