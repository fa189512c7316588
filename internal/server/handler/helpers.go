package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/server/middleware"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Error string           `json:"error"`
	Code  string           `json:"code"`
	Kind  domain.ErrorKind `json:"kind"`
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON error for a request-level problem that never
// reached the ledger.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code, Kind: domain.KindValidation})
}

// statusFor maps an error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindStateConflict:
		return http.StatusConflict
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindResource:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeLedgerError reports a service failure. Internal errors are logged
// and their detail is withheld from the client.
func writeLedgerError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), Code: domain.CodeOf(err), Kind: domain.KindOf(err)}
	switch status {
	case http.StatusServiceUnavailable:
		resp.Code = "Unavailable"
	case http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("request_id", middleware.RequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "InvalidParameters", "request body is required")
			return false
		}
		writeError(w, http.StatusBadRequest, "InvalidParameters", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// requireActor returns the authenticated caller or writes 401.
func requireActor(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error: "this operation requires an authenticated caller",
			Code:  "Unauthenticated",
			Kind:  domain.KindAuthorization,
		})
		return common.Address{}, false
	}
	return actor, true
}

// pathID parses a positive numeric id path parameter. Ids start at 1.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "InvalidParameters", fmt.Sprintf("invalid %s %q", name, r.PathValue(name)))
		return 0, false
	}
	return id, true
}

// parseAddress validates a hex address from a path or query value.
func parseAddress(w http.ResponseWriter, name, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "InvalidParameters", fmt.Sprintf("invalid %s %q", name, raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, 500)
	}
	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		offset = n
	}
	return domain.ListOpts{Limit: limit, Offset: offset}
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
