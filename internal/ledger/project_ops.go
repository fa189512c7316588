package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

type createProjectCmd struct {
	CreateProjectParams
	id uint64
}

func (c *createProjectCmd) op() domain.CommandOp { return domain.OpCreateProject }

func (c *createProjectCmd) prepare(e *Engine, actor common.Address, now time.Time) (func(), error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return func() {
		c.id = e.projects.create(actor, c.CreateProjectParams, now)
		e.emit(domain.Event{
			Type:      domain.EventProjectCreated,
			ProjectID: c.id,
			From:      actor,
			Title:     c.Title,
		})
	}, nil
}

type fundProjectCmd struct {
	ProjectID uint64        `json:"projectId"`
	Amount    domain.Amount `json:"amount"`
}

func (c *fundProjectCmd) op() domain.CommandOp { return domain.OpFundProject }

func (c *fundProjectCmd) prepare(e *Engine, actor common.Address, now time.Time) (func(), error) {
	p, err := e.projects.get(c.ProjectID)
	if err != nil {
		return nil, err
	}
	if actor != p.Creator {
		return nil, fmt.Errorf("%w: only the creator may fund project %d", domain.ErrUnauthorized, p.ID)
	}
	if p.Status != domain.ProjectActive {
		return nil, fmt.Errorf("%w: project %d is %s", domain.ErrProjectInactive, p.ID, p.Status)
	}
	if p.Expired(now) {
		return nil, fmt.Errorf("%w: project %d", domain.ErrProjectExpired, p.ID)
	}
	if c.Amount.IsZero() {
		return nil, fmt.Errorf("%w: funding amount must be positive", domain.ErrInvalidParameters)
	}
	if err := e.token.checkSpend(actor, e.market, c.Amount); err != nil {
		return nil, err
	}
	return func() {
		e.collect(actor, p, c.Amount)
		e.emit(domain.Event{Type: domain.EventProjectFunded, ProjectID: p.ID, From: actor, Amount: c.Amount})
	}, nil
}

type closeProjectCmd struct {
	ProjectID uint64 `json:"projectId"`
}

func (c *closeProjectCmd) op() domain.CommandOp { return domain.OpCloseProject }

func (c *closeProjectCmd) prepare(e *Engine, actor common.Address, _ time.Time) (func(), error) {
	p, err := e.projects.get(c.ProjectID)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case domain.ProjectSettled:
		return nil, fmt.Errorf("%w: project %d", domain.ErrAlreadySettled, p.ID)
	case domain.ProjectClosed:
		return nil, fmt.Errorf("%w: project %d already closed", domain.ErrProjectInactive, p.ID)
	}
	if !e.roles.canResolve(actor, p) {
		return nil, fmt.Errorf("%w: %s may not close project %d", domain.ErrUnauthorized, actor.Hex(), p.ID)
	}
	return func() {
		p.Status = domain.ProjectClosed
		e.emit(domain.Event{Type: domain.EventProjectClosed, ProjectID: p.ID})
	}, nil
}

type purchaseTicketCmd struct {
	ProjectID   uint64 `json:"projectId"`
	OptionIndex uint64 `json:"optionIndex"`
	ticketID    uint64
}

func (c *purchaseTicketCmd) op() domain.CommandOp { return domain.OpPurchaseTicket }

func (c *purchaseTicketCmd) prepare(e *Engine, actor common.Address, now time.Time) (func(), error) {
	p, err := e.projects.get(c.ProjectID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.ProjectActive {
		return nil, fmt.Errorf("%w: project %d is %s", domain.ErrProjectInactive, p.ID, p.Status)
	}
	if p.Expired(now) {
		return nil, fmt.Errorf("%w: project %d ended at %s", domain.ErrProjectExpired, p.ID, p.EndTime.Format(time.RFC3339))
	}
	if p.SoldTickets >= p.MaxTickets {
		return nil, fmt.Errorf("%w: project %d sold %d of %d", domain.ErrSoldOut, p.ID, p.SoldTickets, p.MaxTickets)
	}
	if c.OptionIndex >= uint64(len(p.Options)) {
		return nil, fmt.Errorf("%w: option %d of %d", domain.ErrInvalidOption, c.OptionIndex, len(p.Options))
	}
	price := p.TicketPrice
	if err := e.token.checkSpend(actor, e.market, price); err != nil {
		return nil, err
	}
	return func() {
		e.collect(actor, p, price)
		p.SoldTickets++
		p.OptionCounts[c.OptionIndex]++
		c.ticketID = e.tickets.mint(actor, p.ID, c.OptionIndex, price, now)
		e.emit(domain.Event{
			Type:      domain.EventTicketMinted,
			TicketID:  c.ticketID,
			ProjectID: p.ID,
			To:        actor,
			Option:    c.OptionIndex,
		})
		e.emit(domain.Event{
			Type:      domain.EventTicketPurchased,
			TicketID:  c.ticketID,
			ProjectID: p.ID,
			From:      actor,
			Option:    c.OptionIndex,
			Amount:    price,
		})
	}, nil
}

type settleProjectCmd struct {
	ProjectID     uint64 `json:"projectId"`
	WinningOption uint64 `json:"winningOption"`
	plan          SettlementPlan
}

func (c *settleProjectCmd) op() domain.CommandOp { return domain.OpSettleProject }

func (c *settleProjectCmd) prepare(e *Engine, actor common.Address, now time.Time) (func(), error) {
	plan, err := e.settlement.plan(e.roles, actor, c.ProjectID, c.WinningOption)
	if err != nil {
		return nil, err
	}
	return func() {
		c.plan = plan
		e.settlement.apply(plan, now, e.emit)
	}, nil
}

// collect pulls amt from payer into the project's escrow using the market's
// allowance and grows the prize pool by the same amount.
func (e *Engine) collect(payer common.Address, p *domain.Project, amt domain.Amount) {
	e.token.spendAllowance(payer, e.market, amt)
	e.token.toEscrow(payer, p.ID, amt)
	p.TotalPrize = mustAdd(p.TotalPrize, amt)
	e.emit(domain.Event{Type: domain.EventTransfer, ProjectID: p.ID, From: payer, To: e.market, Amount: amt})
}

// CreateProject opens a new project owned by actor and returns its ID.
func (e *Engine) CreateProject(ctx context.Context, actor common.Address, params CreateProjectParams) (uint64, error) {
	c := &createProjectCmd{CreateProjectParams: params}
	if err := e.submit(ctx, actor, c); err != nil {
		return 0, err
	}
	return c.id, nil
}

// FundProject adds amt to a project's prize pool. Creator only; requires the
// market to hold enough allowance.
func (e *Engine) FundProject(ctx context.Context, actor common.Address, projectID uint64, amt domain.Amount) error {
	return e.submit(ctx, actor, &fundProjectCmd{ProjectID: projectID, Amount: amt})
}

// CloseProject stops ticket sales without settling. Creator or admin only.
func (e *Engine) CloseProject(ctx context.Context, actor common.Address, projectID uint64) error {
	return e.submit(ctx, actor, &closeProjectCmd{ProjectID: projectID})
}

// PurchaseTicket sells one ticket on option to actor at the project's ticket
// price and returns the new ticket ID.
func (e *Engine) PurchaseTicket(ctx context.Context, actor common.Address, projectID, option uint64) (uint64, error) {
	c := &purchaseTicketCmd{ProjectID: projectID, OptionIndex: option}
	if err := e.submit(ctx, actor, c); err != nil {
		return 0, err
	}
	return c.ticketID, nil
}

// SettleProject resolves a project and pays out its pool. Admin or creator
// only. Settlement is allowed before the sales window ends.
func (e *Engine) SettleProject(ctx context.Context, actor common.Address, projectID, winning uint64) (SettlementPlan, error) {
	c := &settleProjectCmd{ProjectID: projectID, WinningOption: winning}
	if err := e.submit(ctx, actor, c); err != nil {
		return SettlementPlan{}, err
	}
	return c.plan, nil
}

// PreviewSettlement computes the settlement plan as the admin would see it,
// without changing anything.
func (e *Engine) PreviewSettlement(projectID, winning uint64) (SettlementPlan, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	plan, err := e.settlement.plan(e.roles, e.roles.Admin, projectID, winning)
	if err != nil {
		return SettlementPlan{}, fmt.Errorf("ledger: preview settlement: %w", err)
	}
	return plan, nil
}
