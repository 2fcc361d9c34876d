package main

import (
	"context"
	"time"

	"github.com/unclebandit/bulk-dispatcher/internal/model"
)

type entrySource interface {
	Entries(ctx context.Context) ([]model.LedgerEntry, error)
}

type entryStore interface {
	Insert(ctx context.Context, e model.LedgerEntry) error
}

// importLog copies every entry of src into dst in log order. Entries without
// a parseable timestamp are stamped with the import time.
func importLog(ctx context.Context, src entrySource, dst entryStore) (int, error) {
	entries, err := src.Entries(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	for i, e := range entries {
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		if err := dst.Insert(ctx, e); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}
