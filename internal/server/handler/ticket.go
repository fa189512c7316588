package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// TicketService is what the ticket endpoints need from the service layer.
type TicketService interface {
	Ticket(id uint64) (domain.Ticket, error)
	ActiveOrderForTicket(ticketID uint64) (uint64, bool, error)
	Order(id uint64) (domain.Order, error)

	ListTicket(ctx context.Context, actor common.Address, ticketID uint64, price domain.Amount) (uint64, error)
	TransferTicket(ctx context.Context, actor common.Address, ticketID uint64, to common.Address) error
}

// TicketHandler serves ticket endpoints.
type TicketHandler struct {
	tickets TicketService
	logger  *slog.Logger
}

// NewTicketHandler creates a TicketHandler.
func NewTicketHandler(tickets TicketService, logger *slog.Logger) *TicketHandler {
	return &TicketHandler{tickets: tickets, logger: logHandler(logger, "ticket")}
}

// Get returns a ticket and its active listing, if any.
// GET /api/tickets/{id}
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	h.writeTicket(w, r, id, http.StatusOK)
}

type listRequest struct {
	Price domain.Amount `json:"price"`
}

type listResponse struct {
	OrderID uint64    `json:"orderId"`
	Order   orderView `json:"order"`
}

// List offers the caller's ticket for sale.
// POST /api/tickets/{id}/list
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req listRequest
	if !decodeBody(w, r, &req) {
		return
	}
	oid, err := h.tickets.ListTicket(r.Context(), actor, id, req.Price)
	if err != nil {
		writeLedgerError(w, r, h.logger, "list ticket", err)
		return
	}
	o, err := h.tickets.Order(oid)
	if err != nil {
		writeLedgerError(w, r, h.logger, "list ticket", err)
		return
	}
	writeJSON(w, http.StatusCreated, listResponse{OrderID: oid, Order: newOrderView(o)})
}

type ticketTransferRequest struct {
	To common.Address `json:"to"`
}

// Transfer gives the caller's unlisted ticket to another account.
// POST /api/tickets/{id}/transfer
func (h *TicketHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ticketTransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.tickets.TransferTicket(r.Context(), actor, id, req.To); err != nil {
		writeLedgerError(w, r, h.logger, "transfer ticket", err)
		return
	}
	h.writeTicket(w, r, id, http.StatusOK)
}

func (h *TicketHandler) writeTicket(w http.ResponseWriter, r *http.Request, id uint64, status int) {
	t, err := h.tickets.Ticket(id)
	if err != nil {
		writeLedgerError(w, r, h.logger, "get ticket", err)
		return
	}
	oid, _, err := h.tickets.ActiveOrderForTicket(id)
	if err != nil {
		writeLedgerError(w, r, h.logger, "get ticket", err)
		return
	}
	writeJSON(w, status, newTicketView(t, oid))
}
