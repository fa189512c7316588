package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

type approveCmd struct {
	Spender common.Address `json:"spender"`
	Amount  domain.Amount  `json:"amount"`
}

func (c *approveCmd) op() domain.CommandOp { return domain.OpApprove }

func (c *approveCmd) prepare(e *Engine, actor common.Address, _ time.Time) (func(), error) {
	if c.Spender == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero spender", domain.ErrInvalidParameters)
	}
	return func() { e.setAllowance(actor, c.Spender, c.Amount) }, nil
}

type adjustAllowanceCmd struct {
	Spender  common.Address `json:"spender"`
	Amount   domain.Amount  `json:"amount"`
	decrease bool
}

func (c *adjustAllowanceCmd) op() domain.CommandOp {
	if c.decrease {
		return domain.OpDecreaseAllowance
	}
	return domain.OpIncreaseAllowance
}

func (c *adjustAllowanceCmd) prepare(e *Engine, actor common.Address, _ time.Time) (func(), error) {
	if c.Spender == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero spender", domain.ErrInvalidParameters)
	}
	cur := e.token.Allowance(actor, c.Spender)
	var (
		next domain.Amount
		ok   bool
	)
	if c.decrease {
		if next, ok = cur.Sub(c.Amount); !ok {
			return nil, fmt.Errorf("%w: allowance below zero", domain.ErrInvalidParameters)
		}
	} else if next, ok = cur.Add(c.Amount); !ok {
		return nil, fmt.Errorf("%w: allowance overflow", domain.ErrInvalidParameters)
	}
	return func() { e.setAllowance(actor, c.Spender, next) }, nil
}

type transferCmd struct {
	To     common.Address `json:"to"`
	Amount domain.Amount  `json:"amount"`
}

func (c *transferCmd) op() domain.CommandOp { return domain.OpTransfer }

func (c *transferCmd) prepare(e *Engine, actor common.Address, _ time.Time) (func(), error) {
	if c.To == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero recipient", domain.ErrInvalidParameters)
	}
	if err := e.token.checkDebit(actor, c.Amount); err != nil {
		return nil, err
	}
	return func() { e.transferTokens(actor, c.To, c.Amount) }, nil
}

type transferFromCmd struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount domain.Amount  `json:"amount"`
}

func (c *transferFromCmd) op() domain.CommandOp { return domain.OpTransferFrom }

func (c *transferFromCmd) prepare(e *Engine, actor common.Address, _ time.Time) (func(), error) {
	if c.From == (common.Address{}) || c.To == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero address", domain.ErrInvalidParameters)
	}
	if err := e.token.checkSpend(c.From, actor, c.Amount); err != nil {
		return nil, err
	}
	return func() {
		e.token.spendAllowance(c.From, actor, c.Amount)
		e.transferTokens(c.From, c.To, c.Amount)
	}, nil
}

type claimTokensCmd struct{}

func (c *claimTokensCmd) op() domain.CommandOp { return domain.OpClaimTokens }

func (c *claimTokensCmd) prepare(e *Engine, actor common.Address, _ time.Time) (func(), error) {
	if e.token.HasClaimed(actor) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyClaimed, actor.Hex())
	}
	amt := e.token.faucet
	if amt.IsZero() {
		return nil, fmt.Errorf("%w: faucet disabled", domain.ErrInvalidParameters)
	}
	if err := e.token.checkMint(amt); err != nil {
		return nil, err
	}
	return func() {
		e.token.claimed[actor] = true
		e.mintTokens(actor, amt)
		e.emit(domain.Event{Type: domain.EventTokensClaimed, To: actor, Amount: amt})
	}, nil
}

type mintCmd struct {
	To     common.Address `json:"to"`
	Amount domain.Amount  `json:"amount"`
}

func (c *mintCmd) op() domain.CommandOp { return domain.OpMint }

func (c *mintCmd) prepare(e *Engine, actor common.Address, _ time.Time) (func(), error) {
	if actor != e.roles.Admin {
		return nil, fmt.Errorf("%w: only admin may mint", domain.ErrUnauthorized)
	}
	if c.To == (common.Address{}) || c.Amount.IsZero() {
		return nil, fmt.Errorf("%w: mint needs a recipient and a positive amount", domain.ErrInvalidParameters)
	}
	if err := e.token.checkMint(c.Amount); err != nil {
		return nil, err
	}
	return func() { e.mintTokens(c.To, c.Amount) }, nil
}

type transferAdminCmd struct {
	NewAdmin common.Address `json:"newAdmin"`
}

func (c *transferAdminCmd) op() domain.CommandOp { return domain.OpTransferAdmin }

func (c *transferAdminCmd) prepare(e *Engine, actor common.Address, _ time.Time) (func(), error) {
	if actor != e.roles.Admin {
		return nil, fmt.Errorf("%w: only admin may transfer admin", domain.ErrUnauthorized)
	}
	if c.NewAdmin == (common.Address{}) || c.NewAdmin == e.market {
		return nil, fmt.Errorf("%w: invalid new admin", domain.ErrInvalidParameters)
	}
	return func() {
		prev := e.roles.Admin
		e.roles.Admin = c.NewAdmin
		e.emit(domain.Event{Type: domain.EventAdminTransferred, From: prev, To: c.NewAdmin})
	}, nil
}

func (e *Engine) setAllowance(owner, spender common.Address, amt domain.Amount) {
	e.token.setAllowance(owner, spender, amt)
	e.emit(domain.Event{Type: domain.EventApproval, From: owner, To: spender, Amount: amt})
}

func (e *Engine) transferTokens(from, to common.Address, amt domain.Amount) {
	e.token.move(from, to, amt)
	e.emit(domain.Event{Type: domain.EventTransfer, From: from, To: to, Amount: amt})
}

func (e *Engine) mintTokens(to common.Address, amt domain.Amount) {
	e.token.mint(to, amt)
	e.emit(domain.Event{Type: domain.EventTransfer, To: to, Amount: amt})
}

// Approve sets spender's allowance over actor's balance to amt.
func (e *Engine) Approve(ctx context.Context, actor, spender common.Address, amt domain.Amount) error {
	return e.submit(ctx, actor, &approveCmd{Spender: spender, Amount: amt})
}

// IncreaseAllowance adds amt to spender's allowance. Fails on overflow.
func (e *Engine) IncreaseAllowance(ctx context.Context, actor, spender common.Address, amt domain.Amount) error {
	return e.submit(ctx, actor, &adjustAllowanceCmd{Spender: spender, Amount: amt})
}

// DecreaseAllowance subtracts amt from spender's allowance. Fails rather
// than clamping when the allowance would go below zero.
func (e *Engine) DecreaseAllowance(ctx context.Context, actor, spender common.Address, amt domain.Amount) error {
	return e.submit(ctx, actor, &adjustAllowanceCmd{Spender: spender, Amount: amt, decrease: true})
}

func (e *Engine) Transfer(ctx context.Context, actor, to common.Address, amt domain.Amount) error {
	return e.submit(ctx, actor, &transferCmd{To: to, Amount: amt})
}

// TransferFrom moves amt from one account to another using actor's
// allowance over from.
func (e *Engine) TransferFrom(ctx context.Context, actor, from, to common.Address, amt domain.Amount) error {
	return e.submit(ctx, actor, &transferFromCmd{From: from, To: to, Amount: amt})
}

// ClaimTokens mints the faucet amount to actor. Each identity may claim once.
func (e *Engine) ClaimTokens(ctx context.Context, actor common.Address) (domain.Amount, error) {
	if err := e.submit(ctx, actor, &claimTokensCmd{}); err != nil {
		return domain.Amount{}, err
	}
	return e.token.faucet, nil
}

// Mint creates new tokens. Admin only.
func (e *Engine) Mint(ctx context.Context, actor, to common.Address, amt domain.Amount) error {
	return e.submit(ctx, actor, &mintCmd{To: to, Amount: amt})
}

// TransferAdmin hands the admin role to another identity. Admin only.
func (e *Engine) TransferAdmin(ctx context.Context, actor, newAdmin common.Address) error {
	return e.submit(ctx, actor, &transferAdminCmd{NewAdmin: newAdmin})
}
