package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// AccountService is what the account endpoints need from the service layer.
type AccountService interface {
	Account(addr common.Address) domain.Account
	TicketsByOwner(owner common.Address) []uint64
	OrdersBySeller(seller common.Address) []uint64
	Ticket(id uint64) (domain.Ticket, error)
	Order(id uint64) (domain.Order, error)
	ActiveOrderForTicket(ticketID uint64) (uint64, bool, error)
	AccountHistory(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Event, error)
}

// AccountHandler serves per-identity views.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logHandler(logger, "account")}
}

// Get returns an account summary.
// GET /api/accounts/{address}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, "address", r.PathValue("address"))
	if !ok {
		return
	}
	acct := h.accounts.Account(addr)
	writeJSON(w, http.StatusOK, accountView{Account: acct, BalanceDisplay: acct.Balance.Display()})
}

// Tickets returns the tickets an account holds.
// GET /api/accounts/{address}/tickets
func (h *AccountHandler) Tickets(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, "address", r.PathValue("address"))
	if !ok {
		return
	}
	ids := h.accounts.TicketsByOwner(addr)
	out := make([]ticketView, 0, len(ids))
	for _, id := range ids {
		t, err := h.accounts.Ticket(id)
		if err != nil {
			writeLedgerError(w, r, h.logger, "account tickets", err)
			return
		}
		oid, _, err := h.accounts.ActiveOrderForTicket(id)
		if err != nil {
			writeLedgerError(w, r, h.logger, "account tickets", err)
			return
		}
		out = append(out, newTicketView(t, oid))
	}
	writeJSON(w, http.StatusOK, ticketListResponse{Tickets: out})
}

// Orders returns every order an account has listed, newest last.
// ?active=true keeps only open listings.
// GET /api/accounts/{address}/orders
func (h *AccountHandler) Orders(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, "address", r.PathValue("address"))
	if !ok {
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	ids := h.accounts.OrdersBySeller(addr)
	out := make([]orderView, 0, len(ids))
	for _, id := range ids {
		o, err := h.accounts.Order(id)
		if err != nil {
			writeLedgerError(w, r, h.logger, "account orders", err)
			return
		}
		if activeOnly && !o.Active {
			continue
		}
		out = append(out, newOrderView(o))
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: out})
}

// History returns persisted events that involve an account.
// GET /api/accounts/{address}/history?limit=50&offset=0
func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, "address", r.PathValue("address"))
	if !ok {
		return
	}
	evts, err := h.accounts.AccountHistory(r.Context(), addr, parseListOpts(r))
	if err != nil {
		writeLedgerError(w, r, h.logger, "account history", err)
		return
	}
	writeJSON(w, http.StatusOK, newEventsResponse(evts))
}
