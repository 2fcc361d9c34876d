package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/unclebandit/bulk-dispatcher/internal/model"
)

// MemoryLedger keeps entries in process memory. Nothing survives a restart.
type MemoryLedger struct {
	mu      sync.Mutex
	entries []model.LedgerEntry
}

// NewMemoryLedger returns a ledger preloaded with one delivered entry per phone.
func NewMemoryLedger(sent ...string) *MemoryLedger {
	l := &MemoryLedger{}
	for _, p := range sent {
		l.entries = append(l.entries, model.LedgerEntry{Phone: p, Status: model.StatusDelivered, Timestamp: time.Now().UTC()})
	}
	return l
}

func (l *MemoryLedger) AlreadySent(ctx context.Context) (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sent := map[string]struct{}{}
	for _, e := range l.entries {
		if p := strings.TrimSpace(e.Phone); p != "" {
			sent[p] = struct{}{}
		}
	}
	return sent, nil
}

func (l *MemoryLedger) Record(ctx context.Context, phone, status, details string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, model.LedgerEntry{Phone: phone, Status: status, Details: details, Timestamp: time.Now().UTC()})
	return nil
}

// Entries returns a copy of all entries in append order.
func (l *MemoryLedger) Entries() []model.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.LedgerEntry(nil), l.entries...)
}

func (l *MemoryLedger) Stats(ctx context.Context) (map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := newStats()
	for _, e := range l.entries {
		stats[e.Status]++
		stats["total"]++
	}
	return stats, nil
}

var (
	_ Ledger      = (*MemoryLedger)(nil)
	_ LedgerStats = (*MemoryLedger)(nil)
)
