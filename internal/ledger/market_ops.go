package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

type transferTicketCmd struct {
	TicketID uint64         `json:"ticketId"`
	To       common.Address `json:"to"`
}

func (c *transferTicketCmd) op() domain.CommandOp { return domain.OpTransferTicket }

func (c *transferTicketCmd) prepare(e *Engine, actor common.Address, _ time.Time) (func(), error) {
	t, err := e.tickets.checkOwner(c.TicketID, actor)
	if err != nil {
		return nil, err
	}
	if c.To == (common.Address{}) || c.To == actor {
		return nil, fmt.Errorf("%w: invalid recipient", domain.ErrInvalidParameters)
	}
	if oid, listed := e.orders.ActiveForTicket(t.ID); listed {
		return nil, fmt.Errorf("%w: ticket %d in order %d", domain.ErrAlreadyListed, t.ID, oid)
	}
	return func() { e.moveTicket(t.ID, actor, c.To) }, nil
}

type listTicketCmd struct {
	TicketID uint64        `json:"ticketId"`
	Price    domain.Amount `json:"price"`
	orderID  uint64
}

func (c *listTicketCmd) op() domain.CommandOp { return domain.OpListTicket }

func (c *listTicketCmd) prepare(e *Engine, actor common.Address, now time.Time) (func(), error) {
	t, err := e.tickets.checkOwner(c.TicketID, actor)
	if err != nil {
		return nil, err
	}
	if oid, listed := e.orders.ActiveForTicket(t.ID); listed {
		return nil, fmt.Errorf("%w: ticket %d in order %d", domain.ErrAlreadyListed, t.ID, oid)
	}
	if c.Price.IsZero() {
		return nil, fmt.Errorf("%w: price must be positive", domain.ErrInvalidPrice)
	}
	p, err := e.projects.get(t.ProjectID)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.ProjectSettled {
		return nil, fmt.Errorf("%w: project %d is settled", domain.ErrProjectInactive, p.ID)
	}
	return func() {
		c.orderID = e.orders.create(t, actor, c.Price, now)
		e.emit(domain.Event{
			Type:      domain.EventOrderCreated,
			OrderID:   c.orderID,
			TicketID:  t.ID,
			ProjectID: t.ProjectID,
			From:      actor,
			Amount:    c.Price,
		})
	}, nil
}

type cancelOrderCmd struct {
	OrderID uint64 `json:"orderId"`
}

func (c *cancelOrderCmd) op() domain.CommandOp { return domain.OpCancelOrder }

func (c *cancelOrderCmd) prepare(e *Engine, actor common.Address, now time.Time) (func(), error) {
	o, err := e.orders.get(c.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.Active {
		return nil, fmt.Errorf("%w: order %d is %s", domain.ErrOrderInactive, o.ID, o.Outcome)
	}
	if actor != o.Seller && actor != e.roles.Admin {
		return nil, fmt.Errorf("%w: %s may not cancel order %d", domain.ErrUnauthorized, actor.Hex(), o.ID)
	}
	return func() {
		e.orders.close(o.ID, domain.OrderCancelled, common.Address{}, now)
		e.emit(domain.Event{Type: domain.EventOrderCancelled, OrderID: o.ID, TicketID: o.TicketID, ProjectID: o.ProjectID})
	}, nil
}

type buyListedTicketCmd struct {
	OrderID  uint64 `json:"orderId"`
	ticketID uint64
}

func (c *buyListedTicketCmd) op() domain.CommandOp { return domain.OpBuyListedTicket }

func (c *buyListedTicketCmd) prepare(e *Engine, actor common.Address, now time.Time) (func(), error) {
	o, err := e.orders.get(c.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.Active {
		return nil, fmt.Errorf("%w: order %d is %s", domain.ErrOrderInactive, o.ID, o.Outcome)
	}
	if actor == o.Seller {
		return nil, fmt.Errorf("%w: order %d", domain.ErrSelfTrade, o.ID)
	}
	if _, err := e.tickets.checkOwner(o.TicketID, o.Seller); err != nil {
		return nil, err
	}
	if err := e.token.checkSpend(actor, e.market, o.Price); err != nil {
		return nil, err
	}
	return func() {
		// The order leaves the book before any balance moves.
		e.orders.close(o.ID, domain.OrderFilled, actor, now)
		e.token.spendAllowance(actor, e.market, o.Price)
		e.transferTokens(actor, o.Seller, o.Price)
		e.moveTicket(o.TicketID, o.Seller, actor)
		c.ticketID = o.TicketID
		e.emit(domain.Event{
			Type:      domain.EventOrderFilled,
			OrderID:   o.ID,
			TicketID:  o.TicketID,
			ProjectID: o.ProjectID,
			From:      o.Seller,
			To:        actor,
			Amount:    o.Price,
		})
	}, nil
}

func (e *Engine) moveTicket(id uint64, from, to common.Address) {
	e.tickets.transfer(id, to)
	e.emit(domain.Event{Type: domain.EventTicketTransferred, TicketID: id, From: from, To: to})
}

// TransferTicket gives a ticket away. Listed tickets must be delisted first.
func (e *Engine) TransferTicket(ctx context.Context, actor common.Address, ticketID uint64, to common.Address) error {
	return e.submit(ctx, actor, &transferTicketCmd{TicketID: ticketID, To: to})
}

// ListTicket offers a ticket for sale at price and returns the order ID.
func (e *Engine) ListTicket(ctx context.Context, actor common.Address, ticketID uint64, price domain.Amount) (uint64, error) {
	c := &listTicketCmd{TicketID: ticketID, Price: price}
	if err := e.submit(ctx, actor, c); err != nil {
		return 0, err
	}
	return c.orderID, nil
}

// CancelOrder withdraws an active listing. Seller or admin only.
func (e *Engine) CancelOrder(ctx context.Context, actor common.Address, orderID uint64) error {
	return e.submit(ctx, actor, &cancelOrderCmd{OrderID: orderID})
}

// BuyListedTicket fills an active order. Of several concurrent buyers of the
// same order exactly one succeeds; the rest see OrderInactive.
func (e *Engine) BuyListedTicket(ctx context.Context, actor common.Address, orderID uint64) (uint64, error) {
	c := &buyListedTicketCmd{OrderID: orderID}
	if err := e.submit(ctx, actor, c); err != nil {
		return 0, err
	}
	return c.ticketID, nil
}
