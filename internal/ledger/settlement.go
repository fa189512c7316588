package ledger

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// Roles is the role-check capability handed to settlement. A project may be
// resolved by the ledger admin or by its creator.
type Roles struct {
	Admin common.Address
}

func (r Roles) canResolve(actor common.Address, p *domain.Project) bool {
	return actor == r.Admin || actor == p.Creator
}

// Payout is a single prize transfer. TicketID is zero for a creator refund.
type Payout struct {
	TicketID  uint64         `json:"ticketId"`
	Recipient common.Address `json:"recipient"`
	Amount    domain.Amount  `json:"amount"`
}

// SettlementPlan is the full effect of settling a project, computed before
// anything is mutated.
type SettlementPlan struct {
	ProjectID     uint64        `json:"projectId"`
	WinningOption uint64        `json:"winningOption"`
	Pool          domain.Amount `json:"pool"`
	Winners       int           `json:"winners"`
	Refund        bool          `json:"refund"`
	Payouts       []Payout      `json:"payouts"`
	CancelOrders  []uint64      `json:"cancelOrders"`
}

// SettlementEngine resolves projects and distributes their escrowed pool.
//
// The pool is split evenly across winning tickets by integer division. The
// remainder goes to the lowest-ID winning ticket so the pool is always paid
// out in full. With no winning tickets the pool is refunded to the creator.
type SettlementEngine struct {
	projects *ProjectRegistry
	tickets  *TicketRegistry
	orders   *OrderBook
	token    *TokenLedger
}

func (s *SettlementEngine) plan(roles Roles, actor common.Address, projectID, winning uint64) (SettlementPlan, error) {
	p, err := s.projects.get(projectID)
	if err != nil {
		return SettlementPlan{}, err
	}
	if p.Status == domain.ProjectSettled {
		return SettlementPlan{}, fmt.Errorf("%w: project %d", domain.ErrAlreadySettled, projectID)
	}
	if !roles.canResolve(actor, p) {
		return SettlementPlan{}, fmt.Errorf("%w: %s may not settle project %d", domain.ErrUnauthorized, actor.Hex(), projectID)
	}
	if winning >= uint64(len(p.Options)) {
		return SettlementPlan{}, fmt.Errorf("%w: option %d of %d", domain.ErrInvalidOption, winning, len(p.Options))
	}

	plan := SettlementPlan{
		ProjectID:     projectID,
		WinningOption: winning,
		Pool:          s.token.EscrowOf(projectID),
		CancelOrders:  s.orders.activeInProject(projectID),
	}

	var winners []*domain.Ticket
	for _, id := range s.tickets.byProject[projectID] {
		t := &s.tickets.tickets[id-1]
		if t.OptionIndex == winning && !t.Paid {
			winners = append(winners, t)
		}
	}
	plan.Winners = len(winners)

	if len(winners) == 0 {
		plan.Refund = true
		if !plan.Pool.IsZero() {
			plan.Payouts = []Payout{{Recipient: p.Creator, Amount: plan.Pool}}
		}
		return plan, nil
	}

	share, rem := plan.Pool.DivMod(uint64(len(winners)))
	plan.Payouts = make([]Payout, len(winners))
	for i, t := range winners {
		plan.Payouts[i] = Payout{TicketID: t.ID, Recipient: t.Owner, Amount: share}
	}
	plan.Payouts[0].Amount = mustAdd(share, rem)
	return plan, nil
}

// apply executes a plan produced by plan against unchanged state.
func (s *SettlementEngine) apply(plan SettlementPlan, now time.Time, emit func(domain.Event)) {
	p := &s.projects.projects[plan.ProjectID-1]

	for _, oid := range plan.CancelOrders {
		s.orders.close(oid, domain.OrderCancelled, common.Address{}, now)
		emit(domain.Event{Type: domain.EventOrderCancelled, OrderID: oid, ProjectID: plan.ProjectID})
	}

	p.Status = domain.ProjectSettled
	p.WinningOption = plan.WinningOption
	at := now
	p.SettledAt = &at
	emit(domain.Event{Type: domain.EventProjectSettled, ProjectID: plan.ProjectID, Option: plan.WinningOption})

	for _, po := range plan.Payouts {
		s.token.fromEscrow(plan.ProjectID, po.Recipient, po.Amount)
		if po.TicketID != 0 {
			s.tickets.markPaid(po.TicketID, po.Amount)
		}
		emit(domain.Event{
			Type:      domain.EventPrizeDistributed,
			ProjectID: plan.ProjectID,
			TicketID:  po.TicketID,
			To:        po.Recipient,
			Amount:    po.Amount,
		})
	}
	if !s.token.EscrowOf(plan.ProjectID).IsZero() {
		panic(fmt.Sprintf("ledger: project %d escrow not drained by settlement", plan.ProjectID))
	}
}
