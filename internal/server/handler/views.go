package handler

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// Response views add human-readable amount strings next to the base-unit
// values and derive fields clients would otherwise recompute.

type projectView struct {
	domain.Project
	TicketPriceDisplay string `json:"ticketPriceDisplay"`
	TotalPrizeDisplay  string `json:"totalPrizeDisplay"`
	Expired            bool   `json:"expired"`
	Open               bool   `json:"open"`
}

func newProjectView(p domain.Project, now time.Time) projectView {
	return projectView{
		Project:            p,
		TicketPriceDisplay: p.TicketPrice.Display(),
		TotalPrizeDisplay:  p.TotalPrize.Display(),
		Expired:            p.Expired(now),
		Open:               p.Open(now),
	}
}

type ticketView struct {
	domain.Ticket
	PurchasePriceDisplay string `json:"purchasePriceDisplay"`
	PayoutDisplay        string `json:"payoutDisplay"`
	// ActiveOrderID is zero when the ticket is not listed.
	ActiveOrderID uint64 `json:"activeOrderId"`
}

func newTicketView(t domain.Ticket, activeOrder uint64) ticketView {
	return ticketView{
		Ticket:               t,
		PurchasePriceDisplay: t.PurchasePrice.Display(),
		PayoutDisplay:        t.Payout.Display(),
		ActiveOrderID:        activeOrder,
	}
}

type orderView struct {
	domain.Order
	PriceDisplay string `json:"priceDisplay"`
}

func newOrderView(o domain.Order) orderView {
	return orderView{Order: o, PriceDisplay: o.Price.Display()}
}

type amountView struct {
	Amount  domain.Amount `json:"amount"`
	Display string        `json:"amountDisplay"`
}

func newAmountView(a domain.Amount) amountView {
	return amountView{Amount: a, Display: a.Display()}
}

type balanceView struct {
	Address        common.Address `json:"address"`
	Balance        domain.Amount  `json:"balance"`
	BalanceDisplay string         `json:"balanceDisplay"`
	Claimed        bool           `json:"claimed"`
	TicketCount    uint64         `json:"ticketCount"`
}

type accountView struct {
	domain.Account
	BalanceDisplay string `json:"balanceDisplay"`
}

// eventsResponse wraps a page of history events.
type eventsResponse struct {
	Events []domain.Event `json:"events"`
}

func newEventsResponse(evts []domain.Event) eventsResponse {
	if evts == nil {
		evts = []domain.Event{}
	}
	return eventsResponse{Events: evts}
}
