package store

import (
	"context"
	"log/slog"
)

// schemaStatements creates the engine's tables. price_history is upgraded to
// a TimescaleDB hypertable when the extension is available; retention and
// continuous-aggregate policies are provisioned by operations tooling, not
// the engine.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS instruments (
		id          TEXT PRIMARY KEY,
		symbol      TEXT UNIQUE NOT NULL,
		name        TEXT NOT NULL,
		base_price  NUMERIC(19,4) NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		instrument_id  TEXT NOT NULL,
		time           TIMESTAMPTZ NOT NULL,
		price          NUMERIC(19,4) NOT NULL,
		volume         BIGINT,
		PRIMARY KEY (instrument_id, time)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id          TEXT PRIMARY KEY,
		username    TEXT UNIQUE NOT NULL,
		token       TEXT UNIQUE NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS portfolios (
		id          TEXT PRIMARY KEY,
		user_id     TEXT UNIQUE NOT NULL REFERENCES users(id),
		balance     NUMERIC(19,4) NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		id             TEXT PRIMARY KEY,
		portfolio_id   TEXT NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
		instrument_id  TEXT NOT NULL REFERENCES instruments(id),
		quantity       BIGINT NOT NULL,
		average_cost   NUMERIC(19,4) NOT NULL,
		UNIQUE (portfolio_id, instrument_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL REFERENCES users(id),
		instrument_id   TEXT NOT NULL REFERENCES instruments(id),
		direction       TEXT NOT NULL,
		type            TEXT NOT NULL,
		quantity        BIGINT NOT NULL,
		limit_price     NUMERIC(19,4) NOT NULL,
		executed_price  NUMERIC(19,4) NOT NULL,
		status          TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		executed_at     TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status)`,
	`CREATE INDEX IF NOT EXISTS orders_user_idx ON orders (user_id, created_at DESC)`,
}

// InitSchema creates the tables the engine needs. Safe to call on every
// startup.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	// Hypertable conversion is best-effort: plain PostgreSQL works too,
	// just without time-partitioned storage.
	if _, err := s.pool.Exec(ctx,
		`SELECT create_hypertable('price_history', 'time', if_not_exists => TRUE)`); err != nil {
		slog.Warn("timescaledb unavailable, price_history stays a plain table", "err", err)
	}
	return nil
}
