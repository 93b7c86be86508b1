package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"flowmon/internal/config"
)

type DB struct {
	pool *pgxpool.Pool
	// now is the clock behind the windowed aggregations; injectable so
	// bucket boundaries are deterministic in tests.
	now func() time.Time
}

// New builds the shared bounded connection pool. Every component receives
// this handle; nothing in the process talks to the store around it.
func New(ctx context.Context, url string, pc config.PoolConfig) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	cfg.MaxConns = int32(pc.MaxConns)
	cfg.MinConns = int32(pc.MinConns)
	cfg.MaxConnLifetime = pc.MaxConnLifetime
	cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &DB{pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Init creates the schema if it does not exist yet. The capture pipeline
// and this API share these tables; both sides tolerate re-running it.
func (db *DB) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS protocol_list (
			protocol INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS label_list (
			label_id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS flow (
			id BIGSERIAL PRIMARY KEY,
			uuid TEXT NOT NULL UNIQUE,
			timestamp TIMESTAMPTZ NOT NULL,
			src_ip TEXT NOT NULL,
			src_port INTEGER NOT NULL,
			dst_ip TEXT NOT NULL,
			dst_port INTEGER NOT NULL,
			protocol INTEGER NOT NULL REFERENCES protocol_list(protocol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flow_timestamp ON flow(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_flow_src_ip ON flow(src_ip)`,
		`CREATE INDEX IF NOT EXISTS idx_flow_dst_ip ON flow(dst_ip)`,
		`CREATE TABLE IF NOT EXISTS alert_history (
			id BIGINT PRIMARY KEY REFERENCES flow(id),
			label INTEGER NOT NULL REFERENCES label_list(label_id),
			score DOUBLE PRECISION NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			pcap BYTEA
		)`,
		`CREATE TABLE IF NOT EXISTS host (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			location TEXT NOT NULL,
			ip TEXT NOT NULL,
			gateway TEXT NOT NULL,
			mac_addr BIGINT NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			department TEXT NOT NULL DEFAULT '',
			importance INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_host_ip ON host(ip)`,
		`CREATE TABLE IF NOT EXISTS notification_token (
			id BIGSERIAL PRIMARY KEY,
			device_name TEXT NOT NULL,
			token TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS traffic_table (
			id BIGSERIAL PRIMARY KEY,
			traffic BIGINT NOT NULL,
			interval_seconds INTEGER NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traffic_timestamp ON traffic_table(timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
