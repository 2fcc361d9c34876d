// internal/handler/ledger_handler.go
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/unclebandit/bulk-dispatcher/internal/repository"
)

// LedgerHandler exposes read-only views of the delivery ledger.
type LedgerHandler struct {
	Ledger repository.Ledger
	Log    zerolog.Logger
}

func NewLedgerHandler(l repository.Ledger, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{Ledger: l, Log: log}
}

// StatsHandler returns entry counts per status plus the number of distinct
// recipients already attempted.
func (h *LedgerHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.Ledger.(repository.LedgerStats)
	if !ok {
		http.Error(w, "ledger backend does not support stats", http.StatusNotImplemented)
		return
	}

	counts, err := stats.Stats(r.Context())
	if err != nil {
		h.Log.Error().Err(err).Msg("ledger stats failed")
		http.Error(w, "failed to read ledger: "+err.Error(), http.StatusInternalServerError)
		return
	}
	sent, err := h.Ledger.AlreadySent(r.Context())
	if err != nil {
		h.Log.Error().Err(err).Msg("ledger read failed")
		http.Error(w, "failed to read ledger: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"by_status":  counts,
		"recipients": len(sent),
	})
}
