package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	Order(id uint64) (domain.Order, error)

	CancelOrder(ctx context.Context, actor common.Address, orderID uint64) error
	BuyListedTicket(ctx context.Context, actor common.Address, orderID uint64) (uint64, error)
}

// OrderHandler serves secondary-market order endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logHandler(logger, "order")}
}

// Get returns one order.
// GET /api/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	h.writeOrder(w, r, id)
}

// Cancel withdraws an active listing. Seller or admin only.
// DELETE /api/orders/{id}
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.orders.CancelOrder(r.Context(), actor, id); err != nil {
		writeLedgerError(w, r, h.logger, "cancel order", err)
		return
	}
	h.writeOrder(w, r, id)
}

type fillResponse struct {
	TicketID uint64    `json:"ticketId"`
	Order    orderView `json:"order"`
}

// Fill buys the listed ticket at the order's price.
// POST /api/orders/{id}/fill
func (h *OrderHandler) Fill(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tid, err := h.orders.BuyListedTicket(r.Context(), actor, id)
	if err != nil {
		writeLedgerError(w, r, h.logger, "fill order", err)
		return
	}
	o, err := h.orders.Order(id)
	if err != nil {
		writeLedgerError(w, r, h.logger, "fill order", err)
		return
	}
	writeJSON(w, http.StatusOK, fillResponse{TicketID: tid, Order: newOrderView(o)})
}

func (h *OrderHandler) writeOrder(w http.ResponseWriter, r *http.Request, id uint64) {
	o, err := h.orders.Order(id)
	if err != nil {
		writeLedgerError(w, r, h.logger, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}
