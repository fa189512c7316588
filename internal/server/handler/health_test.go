package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLedger struct{ halted error }

func (stubLedger) Seq() (uint64, uint64) { return 4, 9 }

func (s stubLedger) Halted() error { return s.halted }

func TestHealthCheckReportsHalt(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	get := func(l LedgerStatus) (int, map[string]any) {
		rec := httptest.NewRecorder()
		NewHealthHandler(l, "server", logger).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body
	}

	code, body := get(stubLedger{})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 4, body["commandSeq"])
	assert.NotContains(t, body, "reason")

	code, body = get(stubLedger{halted: errors.New("journal head unknown")})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "halted", body["status"])
	assert.Equal(t, "journal head unknown", body["reason"])
}
