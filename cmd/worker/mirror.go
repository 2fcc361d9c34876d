package main

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/unclebandit/bulk-dispatcher/internal/model"
	"github.com/unclebandit/bulk-dispatcher/internal/queue"
)

type entryStore interface {
	Insert(ctx context.Context, e model.LedgerEntry) error
}

// mirror copies outcome events into a second ledger so the dedup set can be
// shared by dispatchers on other hosts.
type mirror struct {
	Store entryStore
	Log   zerolog.Logger
}

// Handle is the queue subscriber. Returning an error requeues the event once.
func (m *mirror) Handle(payload any) error {
	e, err := queue.DecodeEntry(payload)
	if err != nil {
		m.Log.Warn().Err(err).Msg("dropping malformed outcome")
		return nil
	}
	if strings.TrimSpace(e.Status) == "" {
		m.Log.Warn().Str("phone", e.Phone).Msg("dropping outcome without status")
		return nil
	}
	if err := m.Store.Insert(context.Background(), e); err != nil {
		m.Log.Error().Err(err).Str("phone", e.Phone).Msg("failed to mirror outcome")
		return err
	}
	m.Log.Debug().Str("phone", e.Phone).Str("status", e.Status).Msg("outcome mirrored")
	return nil
}
