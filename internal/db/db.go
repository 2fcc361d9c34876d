// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS delivery_log (
    id         BIGSERIAL PRIMARY KEY,
    phone      TEXT NOT NULL,
    status     TEXT NOT NULL,
    details    TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS delivery_log_phone_idx ON delivery_log (phone);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS delivery_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    phone      TEXT NOT NULL,
    status     TEXT NOT NULL,
    details    TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS delivery_log_phone_idx ON delivery_log (phone);
`

// Open connects to the ledger database, pings it and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	var schema string
	switch driver {
	case Postgres:
		schema = postgresSchema
	case SQLite:
		schema = sqliteSchema
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	if driver == SQLite {
		// single writer; readers share the same connection
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		_, _ = conn.ExecContext(ctx, "PRAGMA busy_timeout = 5000")
		_, _ = conn.ExecContext(ctx, "PRAGMA journal_mode = WAL")
		_, _ = conn.ExecContext(ctx, "PRAGMA synchronous = NORMAL")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return conn, nil
}
