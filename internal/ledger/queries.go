package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// Read operations take the shared lock and return copies, so callers never
// observe a half-applied command.

func (e *Engine) TokenInfo() domain.TokenInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token.Info()
}

func (e *Engine) TotalSupply() domain.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token.TotalSupply()
}

func (e *Engine) BalanceOf(account common.Address) domain.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token.BalanceOf(account)
}

func (e *Engine) Allowance(owner, spender common.Address) domain.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token.Allowance(owner, spender)
}

func (e *Engine) HasClaimed(account common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token.HasClaimed(account)
}

// EscrowOf returns the tokens currently held for a project's prize pool.
func (e *Engine) EscrowOf(projectID uint64) domain.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token.EscrowOf(projectID)
}

func (e *Engine) Project(id uint64) (domain.Project, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, err := e.projects.Get(id)
	if err != nil {
		return domain.Project{}, fmt.Errorf("ledger: get project: %w", err)
	}
	return p, nil
}

// Projects returns every project in ID order.
func (e *Engine) Projects() []domain.Project {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Project, len(e.projects.projects))
	for i := range e.projects.projects {
		out[i] = e.projects.projects[i].Clone()
	}
	return out
}

// ActiveProjects returns the IDs of projects still selling tickets. Expiry
// is judged against the clock at call time.
func (e *Engine) ActiveProjects() []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.projects.Active(e.Now())
}

func (e *Engine) ProjectTicketStats(id uint64) ([]uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats, err := e.projects.Stats(id)
	if err != nil {
		return nil, fmt.Errorf("ledger: ticket stats: %w", err)
	}
	return stats, nil
}

func (e *Engine) Ticket(id uint64) (domain.Ticket, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, err := e.tickets.Get(id)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("ledger: get ticket: %w", err)
	}
	return t, nil
}

func (e *Engine) OwnerOf(ticketID uint64) (common.Address, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	owner, err := e.tickets.OwnerOf(ticketID)
	if err != nil {
		return common.Address{}, fmt.Errorf("ledger: owner of: %w", err)
	}
	return owner, nil
}

// TicketBalance returns how many tickets owner holds.
func (e *Engine) TicketBalance(owner common.Address) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tickets.BalanceOf(owner)
}

func (e *Engine) TicketsByOwner(owner common.Address) []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tickets.ByOwner(owner)
}

func (e *Engine) TicketsByProject(projectID uint64) ([]uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, err := e.projects.get(projectID); err != nil {
		return nil, fmt.Errorf("ledger: tickets by project: %w", err)
	}
	return e.tickets.ByProject(projectID), nil
}

func (e *Engine) Order(id uint64) (domain.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, err := e.orders.Get(id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("ledger: get order: %w", err)
	}
	return o, nil
}

// ProjectOrders returns all orders ever created for a project, active or
// not. Callers filter on Order.Active.
func (e *Engine) ProjectOrders(projectID uint64) ([]uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, err := e.projects.get(projectID); err != nil {
		return nil, fmt.Errorf("ledger: project orders: %w", err)
	}
	return e.orders.ByProject(projectID), nil
}

func (e *Engine) OrdersBySeller(seller common.Address) []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orders.BySeller(seller)
}

// ActiveOrderForTicket returns the active listing of a ticket, if any.
func (e *Engine) ActiveOrderForTicket(ticketID uint64) (uint64, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, err := e.tickets.get(ticketID); err != nil {
		return 0, false, fmt.Errorf("ledger: active order: %w", err)
	}
	id, ok := e.orders.ActiveForTicket(ticketID)
	return id, ok, nil
}

// Account returns a combined view of one identity's holdings.
func (e *Engine) Account(addr common.Address) domain.Account {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tickets := e.tickets.ByOwner(addr)
	return domain.Account{
		Address:     addr,
		Balance:     e.token.BalanceOf(addr),
		Claimed:     e.token.HasClaimed(addr),
		TicketCount: uint64(len(tickets)),
		TicketIDs:   tickets,
		OrderIDs:    e.orders.BySeller(addr),
	}
}

// Totals summarises the ledger for metrics.
func (e *Engine) Totals() (supply, escrow domain.Amount, projects, active int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, amt := range e.token.escrow {
		escrow = mustAdd(escrow, amt)
	}
	return e.token.TotalSupply(), escrow, e.projects.Len(), len(e.projects.Active(e.Now()))
}
