package repository

import (
	"context"
	"fmt"

	"github.com/unclebandit/bulk-dispatcher/internal/db"
)

// OpenLedger builds the ledger backend named by driver. path is the file
// ledger or sqlite database path, dsn the postgres connection string.
// The returned close func is never nil.
func OpenLedger(ctx context.Context, driver, path, dsn string) (Ledger, func() error, error) {
	noop := func() error { return nil }
	switch driver {
	case "", "file":
		return NewFileLedger(path), noop, nil
	case "memory":
		return NewMemoryLedger(), noop, nil
	case db.Postgres:
		conn, err := db.Open(ctx, db.Postgres, dsn)
		if err != nil {
			return nil, noop, err
		}
		return NewSQLLedger(conn, db.Postgres), conn.Close, nil
	case db.SQLite:
		conn, err := db.Open(ctx, db.SQLite, path)
		if err != nil {
			return nil, noop, err
		}
		return NewSQLLedger(conn, db.SQLite), conn.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown ledger driver %q", driver)
}
