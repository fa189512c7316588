package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// AdminService is what the operator endpoints need from the service layer.
type AdminService interface {
	Admin() common.Address
	Seq() (commandSeq, eventSeq uint64)
	Snapshot() domain.LedgerSnapshot
	Audit() error
	AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
	TransferAdmin(ctx context.Context, actor, newAdmin common.Address) error
}

// AdminHandler serves operator endpoints. Every route requires the caller
// to be the current ledger admin.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logHandler(logger, "admin")}
}

func (h *AdminHandler) requireAdmin(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return common.Address{}, false
	}
	if actor != h.admin.Admin() {
		writeJSON(w, http.StatusForbidden, errorResponse{
			Error: "admin only",
			Code:  domain.ErrUnauthorized.Code,
			Kind:  domain.KindAuthorization,
		})
		return common.Address{}, false
	}
	return actor, true
}

// Snapshot returns a consistent copy of the whole ledger.
// GET /api/admin/snapshot
func (h *AdminHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.admin.Snapshot())
}

type auditResponse struct {
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	CommandSeq uint64 `json:"commandSeq"`
	EventSeq   uint64 `json:"eventSeq"`
}

// Audit runs the ledger invariant checks. A failed audit is reported with
// 500 since it means the ledger is corrupt.
// GET /api/admin/audit
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	cmdSeq, evtSeq := h.admin.Seq()
	resp := auditResponse{OK: true, CommandSeq: cmdSeq, EventSeq: evtSeq}
	status := http.StatusOK
	if err := h.admin.Audit(); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: ledger audit failed",
			slog.Uint64("command_seq", cmdSeq),
			slog.String("error", err.Error()),
		)
		resp.OK = false
		resp.Error = err.Error()
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

type auditLogResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// AuditLog lists privileged operations recorded by the service layer.
// GET /api/admin/audit-log?limit=50&offset=0
func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	entries, err := h.admin.AuditLog(r.Context(), parseListOpts(r))
	if err != nil {
		writeLedgerError(w, r, h.logger, "audit log", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, auditLogResponse{Entries: entries})
}

type transferAdminRequest struct {
	NewAdmin common.Address `json:"newAdmin"`
}

// TransferAdmin hands the admin role to another identity.
// POST /api/admin/transfer
func (h *AdminHandler) TransferAdmin(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req transferAdminRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.admin.TransferAdmin(r.Context(), actor, req.NewAdmin); err != nil {
		writeLedgerError(w, r, h.logger, "transfer admin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]common.Address{"admin": h.admin.Admin()})
}
