package ledger

import (
	"fmt"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// TicketRegistry owns ticket records and their per-owner and per-project
// indexes. Ticket IDs are dense and start at 1.
type TicketRegistry struct {
	tickets   []domain.Ticket
	byOwner   map[common.Address][]uint64
	byProject map[uint64][]uint64
}

func newTicketRegistry() *TicketRegistry {
	return &TicketRegistry{
		byOwner:   make(map[common.Address][]uint64),
		byProject: make(map[uint64][]uint64),
	}
}

func (r *TicketRegistry) get(id uint64) (*domain.Ticket, error) {
	if id == 0 || id > uint64(len(r.tickets)) {
		return nil, fmt.Errorf("%w: ticket %d", domain.ErrNotFound, id)
	}
	return &r.tickets[id-1], nil
}

// Get returns a copy of ticket id.
func (r *TicketRegistry) Get(id uint64) (domain.Ticket, error) {
	t, err := r.get(id)
	if err != nil {
		return domain.Ticket{}, err
	}
	return *t, nil
}

func (r *TicketRegistry) OwnerOf(id uint64) (common.Address, error) {
	t, err := r.get(id)
	if err != nil {
		return common.Address{}, err
	}
	return t.Owner, nil
}

func (r *TicketRegistry) BalanceOf(owner common.Address) uint64 {
	return uint64(len(r.byOwner[owner]))
}

// ByOwner returns the IDs of tickets currently held by owner.
func (r *TicketRegistry) ByOwner(owner common.Address) []uint64 {
	return slices.Clone(r.byOwner[owner])
}

// ByProject returns the IDs of tickets sold for a project in mint order.
func (r *TicketRegistry) ByProject(projectID uint64) []uint64 {
	return slices.Clone(r.byProject[projectID])
}

func (r *TicketRegistry) Len() int { return len(r.tickets) }

func (r *TicketRegistry) checkOwner(id uint64, owner common.Address) (*domain.Ticket, error) {
	t, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if t.Owner != owner {
		return nil, fmt.Errorf("%w: ticket %d", domain.ErrNotOwner, id)
	}
	return t, nil
}

func (r *TicketRegistry) mint(owner common.Address, projectID, option uint64, price domain.Amount, at time.Time) uint64 {
	id := uint64(len(r.tickets)) + 1
	r.tickets = append(r.tickets, domain.Ticket{
		ID:            id,
		ProjectID:     projectID,
		OptionIndex:   option,
		Owner:         owner,
		PurchasePrice: price,
		PurchaseTime:  at,
	})
	r.byOwner[owner] = append(r.byOwner[owner], id)
	r.byProject[projectID] = append(r.byProject[projectID], id)
	return id
}

// transfer moves ticket id to a new owner, keeping the owner index exact.
func (r *TicketRegistry) transfer(id uint64, to common.Address) {
	t := &r.tickets[id-1]
	from := t.Owner
	owned := r.byOwner[from]
	i := slices.Index(owned, id)
	if i < 0 {
		panic(fmt.Sprintf("ledger: ticket %d missing from owner index of %s", id, from.Hex()))
	}
	owned = slices.Delete(owned, i, i+1)
	if len(owned) == 0 {
		delete(r.byOwner, from)
	} else {
		r.byOwner[from] = owned
	}
	t.Owner = to
	r.byOwner[to] = append(r.byOwner[to], id)
}

func (r *TicketRegistry) markPaid(id uint64, amt domain.Amount) {
	t := &r.tickets[id-1]
	t.Paid = true
	t.Payout = amt
}

func (r *TicketRegistry) snapshot(s *domain.LedgerSnapshot) {
	s.Tickets = slices.Clone(r.tickets)
}

// audit verifies every ticket appears exactly once, under its owner.
func (r *TicketRegistry) audit() error {
	seen := make(map[uint64]bool, len(r.tickets))
	for owner, ids := range r.byOwner {
		for _, id := range ids {
			if seen[id] {
				return fmt.Errorf("ticket %d indexed under more than one owner", id)
			}
			seen[id] = true
			t, err := r.get(id)
			if err != nil {
				return fmt.Errorf("owner index of %s: %w", owner.Hex(), err)
			}
			if t.Owner != owner {
				return fmt.Errorf("ticket %d indexed under %s but owned by %s", id, owner.Hex(), t.Owner.Hex())
			}
		}
	}
	if len(seen) != len(r.tickets) {
		return fmt.Errorf("owner index covers %d of %d tickets", len(seen), len(r.tickets))
	}
	return nil
}
