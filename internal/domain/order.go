package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OrderOutcome records how an order left the book.
type OrderOutcome string

const (
	OrderOpen      OrderOutcome = "open"
	OrderFilled    OrderOutcome = "filled"
	OrderCancelled OrderOutcome = "cancelled"
)

// Order is a fixed-price sell listing of a single ticket. Once Active is
// false it never becomes true again.
type Order struct {
	ID         uint64         `json:"id"`
	TicketID   uint64         `json:"ticketId"`
	ProjectID  uint64         `json:"projectId"`
	Seller     common.Address `json:"seller"`
	Buyer      common.Address `json:"buyer"`
	Price      Amount         `json:"price"`
	Active     bool           `json:"active"`
	Outcome    OrderOutcome   `json:"outcome"`
	CreateTime time.Time      `json:"createTime"`
	ClosedAt   *time.Time     `json:"closedAt,omitempty"`
}

// Clone returns a copy that shares no pointers with o.
func (o Order) Clone() Order {
	if o.ClosedAt != nil {
		t := *o.ClosedAt
		o.ClosedAt = &t
	}
	return o
}
