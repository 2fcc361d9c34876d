package repository

import (
	"context"
	"strings"
)

// Ledger is the append-only record of attempted recipients and the source
// of truth for dedup across runs.
type Ledger interface {
	// AlreadySent reads every prior entry once and returns the recipient
	// identifiers that have at least one entry.
	AlreadySent(ctx context.Context) (map[string]struct{}, error)
	// Record appends one entry. Safe for concurrent use.
	Record(ctx context.Context, phone, status, details string) error
}

// LedgerStats is implemented by ledgers that can count entries per status.
type LedgerStats interface {
	Stats(ctx context.Context) (map[string]int, error)
}

// LedgerHeader is the first line of a delivery log file.
const LedgerHeader = "phone,status,details,timestamp"

var fieldSanitizer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ", ",", ";")

// SanitizeField makes s safe to store as one field of one log line.
func SanitizeField(s string) string {
	return fieldSanitizer.Replace(s)
}

func newStats() map[string]int {
	return map[string]int{"total": 0}
}
