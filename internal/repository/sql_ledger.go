package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/unclebandit/bulk-dispatcher/internal/db"
	"github.com/unclebandit/bulk-dispatcher/internal/model"
)

// SQLLedger keeps the delivery log in the delivery_log table of PostgreSQL
// or SQLite. Each Record is a single INSERT, so concurrent workers need no
// extra locking.
type SQLLedger struct {
	DB     *sql.DB
	Driver string
}

func NewSQLLedger(conn *sql.DB, driver string) *SQLLedger {
	return &SQLLedger{DB: conn, Driver: driver}
}

func (r *SQLLedger) insertQuery() string {
	if r.Driver == db.Postgres {
		return `INSERT INTO delivery_log (phone, status, details, created_at) VALUES ($1, $2, $3, $4)`
	}
	return `INSERT INTO delivery_log (phone, status, details, created_at) VALUES (?, ?, ?, ?)`
}

func (r *SQLLedger) AlreadySent(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT phone FROM delivery_log WHERE phone <> ''`)
	if err != nil {
		return nil, fmt.Errorf("query sent phones: %w", err)
	}
	defer rows.Close()

	sent := map[string]struct{}{}
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, err
		}
		if phone = strings.TrimSpace(phone); phone != "" {
			sent[phone] = struct{}{}
		}
	}
	return sent, rows.Err()
}

func (r *SQLLedger) Record(ctx context.Context, phone, status, details string) error {
	return r.Insert(ctx, model.LedgerEntry{
		Phone:     phone,
		Status:    status,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
}

// Insert stores e as is, keeping its timestamp. Used by the ledger import.
func (r *SQLLedger) Insert(ctx context.Context, e model.LedgerEntry) error {
	var ts any = e.Timestamp.UTC()
	if r.Driver != db.Postgres {
		ts = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if _, err := r.DB.ExecContext(ctx, r.insertQuery(), e.Phone, e.Status, e.Details, ts); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (r *SQLLedger) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM delivery_log GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := newStats()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

var (
	_ Ledger      = (*SQLLedger)(nil)
	_ LedgerStats = (*SQLLedger)(nil)
)
