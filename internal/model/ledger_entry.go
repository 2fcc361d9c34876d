// internal/model/ledger_entry.go
package model

import (
	"strconv"
	"time"
)

const (
	StatusDelivered = "delivered"
	StatusException = "exception"
	StatusSkipped   = "skipped"
	statusErrorPfx  = "error_"
)

// ErrorStatus returns the ledger status for a non-success HTTP code.
func ErrorStatus(code int) string {
	return statusErrorPfx + strconv.Itoa(code)
}

type LedgerEntry struct {
	Phone     string    `db:"phone" json:"phone"`
	Status    string    `db:"status" json:"status"` // delivered, error_<code>, exception, skipped
	Details   string    `db:"details" json:"details,omitempty"`
	Timestamp time.Time `db:"created_at" json:"timestamp"`
}
