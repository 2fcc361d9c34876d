package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/bulk-dispatcher/internal/handler"
	"github.com/unclebandit/bulk-dispatcher/internal/model"
	"github.com/unclebandit/bulk-dispatcher/internal/repository"
)

type MockLedger struct {
	err error
}

func (m *MockLedger) AlreadySent(ctx context.Context) (map[string]struct{}, error) {
	return nil, m.err
}

func (m *MockLedger) Record(ctx context.Context, phone, status, details string) error { return nil }

func (m *MockLedger) Stats(ctx context.Context) (map[string]int, error) {
	return nil, m.err
}

type plainLedger struct{}

func (plainLedger) AlreadySent(ctx context.Context) (map[string]struct{}, error) { return nil, nil }
func (plainLedger) Record(ctx context.Context, phone, status, details string) error { return nil }

func TestStatsHandler(t *testing.T) {
	l := repository.NewMemoryLedger("A", "B")
	require.NoError(t, l.Record(context.Background(), "C", "error_400", "bad"))
	require.NoError(t, l.Record(context.Background(), "", model.StatusSkipped, "no phone"))
	h := handler.NewLedgerHandler(l, zerolog.Nop())

	w := httptest.NewRecorder()
	h.StatsHandler(w, httptest.NewRequest(http.MethodGet, "/ledger/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		ByStatus   map[string]int `json:"by_status"`
		Recipients int            `json:"recipients"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 3, body.Recipients)
	assert.Equal(t, 4, body.ByStatus["total"])
	assert.Equal(t, 2, body.ByStatus[model.StatusDelivered])
	assert.Equal(t, 1, body.ByStatus["error_400"])
	assert.Equal(t, 1, body.ByStatus[model.StatusSkipped])
}

func TestStatsHandlerLedgerError(t *testing.T) {
	h := handler.NewLedgerHandler(&MockLedger{err: errors.New("db down")}, zerolog.Nop())

	w := httptest.NewRecorder()
	h.StatsHandler(w, httptest.NewRequest(http.MethodGet, "/ledger/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "db down")
}

func TestStatsHandlerUnsupported(t *testing.T) {
	h := handler.NewLedgerHandler(plainLedger{}, zerolog.Nop())

	w := httptest.NewRecorder()
	h.StatsHandler(w, httptest.NewRequest(http.MethodGet, "/ledger/stats", nil))

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
