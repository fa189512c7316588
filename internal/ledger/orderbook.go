package ledger

import (
	"fmt"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// OrderBook holds fixed-price ticket listings. At most one order per ticket
// is active at any time.
type OrderBook struct {
	orders         []domain.Order
	byProject      map[uint64][]uint64
	bySeller       map[common.Address][]uint64
	activeByTicket map[uint64]uint64
}

func newOrderBook() *OrderBook {
	return &OrderBook{
		byProject:      make(map[uint64][]uint64),
		bySeller:       make(map[common.Address][]uint64),
		activeByTicket: make(map[uint64]uint64),
	}
}

func (b *OrderBook) get(id uint64) (*domain.Order, error) {
	if id == 0 || id > uint64(len(b.orders)) {
		return nil, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	return &b.orders[id-1], nil
}

// Get returns a copy of order id.
func (b *OrderBook) Get(id uint64) (domain.Order, error) {
	o, err := b.get(id)
	if err != nil {
		return domain.Order{}, err
	}
	return o.Clone(), nil
}

// ByProject returns every order ever placed for a project, in ID order.
func (b *OrderBook) ByProject(projectID uint64) []uint64 {
	return slices.Clone(b.byProject[projectID])
}

// BySeller returns every order ever placed by seller, in ID order.
func (b *OrderBook) BySeller(seller common.Address) []uint64 {
	return slices.Clone(b.bySeller[seller])
}

// ActiveForTicket returns the active order for a ticket, if any.
func (b *OrderBook) ActiveForTicket(ticketID uint64) (uint64, bool) {
	id, ok := b.activeByTicket[ticketID]
	return id, ok
}

func (b *OrderBook) Len() int { return len(b.orders) }

// activeInProject returns the IDs of a project's active orders.
func (b *OrderBook) activeInProject(projectID uint64) []uint64 {
	var ids []uint64
	for _, id := range b.byProject[projectID] {
		if b.orders[id-1].Active {
			ids = append(ids, id)
		}
	}
	return ids
}

func (b *OrderBook) create(t *domain.Ticket, seller common.Address, price domain.Amount, now time.Time) uint64 {
	id := uint64(len(b.orders)) + 1
	b.orders = append(b.orders, domain.Order{
		ID:         id,
		TicketID:   t.ID,
		ProjectID:  t.ProjectID,
		Seller:     seller,
		Price:      price,
		Active:     true,
		Outcome:    domain.OrderOpen,
		CreateTime: now,
	})
	b.byProject[t.ProjectID] = append(b.byProject[t.ProjectID], id)
	b.bySeller[seller] = append(b.bySeller[seller], id)
	b.activeByTicket[t.ID] = id
	return id
}

// close deactivates an order. It is the only place Active goes false.
func (b *OrderBook) close(id uint64, outcome domain.OrderOutcome, buyer common.Address, now time.Time) *domain.Order {
	o := &b.orders[id-1]
	if !o.Active {
		panic(fmt.Sprintf("ledger: closing inactive order %d", id))
	}
	o.Active = false
	o.Outcome = outcome
	o.Buyer = buyer
	at := now
	o.ClosedAt = &at
	delete(b.activeByTicket, o.TicketID)
	return o
}

func (b *OrderBook) snapshot(s *domain.LedgerSnapshot) {
	s.Orders = make([]domain.Order, len(b.orders))
	for i := range b.orders {
		s.Orders[i] = b.orders[i].Clone()
	}
}
