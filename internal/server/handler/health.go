package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// LedgerStatus reports ledger progress for the health check.
type LedgerStatus interface {
	Seq() (commandSeq, eventSeq uint64)
	Halted() error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	ledger LedgerStatus
	mode   string
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(ledger LedgerStatus, mode string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{ledger: ledger, mode: mode, logger: logger}
}

// HealthCheck reports ledger progress. A halted ledger answers 503 so load
// balancers stop routing writes to it.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	cmdSeq, evtSeq := h.ledger.Seq()
	body := map[string]any{
		"status":     "ok",
		"mode":       h.mode,
		"commandSeq": cmdSeq,
		"eventSeq":   evtSeq,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if err := h.ledger.Halted(); err != nil {
		body["status"] = "halted"
		body["reason"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}
