package ledger

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// TokenLedger tracks fungible balances, allowances and per-project escrow.
// Total supply always equals the sum of all balances plus all escrow.
//
// Checks (check*) never mutate. Mutators assume the matching check passed
// and panic if an invariant would break, since that is a ledger bug.
type TokenLedger struct {
	name       string
	symbol     string
	faucet     domain.Amount
	supply     domain.Amount
	balances   map[common.Address]domain.Amount
	allowances map[common.Address]map[common.Address]domain.Amount
	escrow     map[uint64]domain.Amount
	claimed    map[common.Address]bool
}

func newTokenLedger(name, symbol string, faucet domain.Amount) *TokenLedger {
	return &TokenLedger{
		name:       name,
		symbol:     symbol,
		faucet:     faucet,
		balances:   make(map[common.Address]domain.Amount),
		allowances: make(map[common.Address]map[common.Address]domain.Amount),
		escrow:     make(map[uint64]domain.Amount),
		claimed:    make(map[common.Address]bool),
	}
}

func (t *TokenLedger) Info() domain.TokenInfo {
	return domain.TokenInfo{
		Name:         t.name,
		Symbol:       t.symbol,
		Decimals:     domain.TokenDecimals,
		TotalSupply:  t.supply,
		FaucetAmount: t.faucet,
	}
}

func (t *TokenLedger) TotalSupply() domain.Amount { return t.supply }

func (t *TokenLedger) BalanceOf(a common.Address) domain.Amount { return t.balances[a] }

func (t *TokenLedger) Allowance(owner, spender common.Address) domain.Amount {
	return t.allowances[owner][spender]
}

func (t *TokenLedger) EscrowOf(projectID uint64) domain.Amount { return t.escrow[projectID] }

func (t *TokenLedger) HasClaimed(a common.Address) bool { return t.claimed[a] }

func (t *TokenLedger) checkDebit(from common.Address, amt domain.Amount) error {
	if bal := t.balances[from]; bal.Lt(amt) {
		return fmt.Errorf("%w: balance %s < %s", domain.ErrInsufficientFunds, bal, amt)
	}
	return nil
}

// checkSpend verifies spender may move amt out of owner's balance.
func (t *TokenLedger) checkSpend(owner, spender common.Address, amt domain.Amount) error {
	if err := t.checkDebit(owner, amt); err != nil {
		return err
	}
	if allow := t.Allowance(owner, spender); allow.Lt(amt) {
		return fmt.Errorf("%w: allowance %s < %s", domain.ErrInsufficientFunds, allow, amt)
	}
	return nil
}

func (t *TokenLedger) checkMint(amt domain.Amount) error {
	if _, ok := t.supply.Add(amt); !ok {
		return fmt.Errorf("%w: total supply overflow", domain.ErrInvalidParameters)
	}
	return nil
}

func (t *TokenLedger) setAllowance(owner, spender common.Address, amt domain.Amount) {
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]domain.Amount)
		t.allowances[owner] = m
	}
	if amt.IsZero() {
		delete(m, spender)
		return
	}
	m[spender] = amt
}

// spendAllowance consumes amt of spender's allowance over owner. A maximal
// allowance is treated as infinite.
func (t *TokenLedger) spendAllowance(owner, spender common.Address, amt domain.Amount) {
	allow := t.Allowance(owner, spender)
	if allow.IsMax() {
		return
	}
	t.setAllowance(owner, spender, mustSub(allow, amt))
}

func (t *TokenLedger) debit(from common.Address, amt domain.Amount) {
	bal := mustSub(t.balances[from], amt)
	if bal.IsZero() {
		delete(t.balances, from)
		return
	}
	t.balances[from] = bal
}

func (t *TokenLedger) credit(to common.Address, amt domain.Amount) {
	if amt.IsZero() {
		return
	}
	t.balances[to] = mustAdd(t.balances[to], amt)
}

func (t *TokenLedger) move(from, to common.Address, amt domain.Amount) {
	t.debit(from, amt)
	t.credit(to, amt)
}

func (t *TokenLedger) mint(to common.Address, amt domain.Amount) {
	t.supply = mustAdd(t.supply, amt)
	t.credit(to, amt)
}

func (t *TokenLedger) toEscrow(from common.Address, projectID uint64, amt domain.Amount) {
	t.debit(from, amt)
	t.escrow[projectID] = mustAdd(t.escrow[projectID], amt)
}

func (t *TokenLedger) fromEscrow(projectID uint64, to common.Address, amt domain.Amount) {
	rest := mustSub(t.escrow[projectID], amt)
	if rest.IsZero() {
		delete(t.escrow, projectID)
	} else {
		t.escrow[projectID] = rest
	}
	t.credit(to, amt)
}

func (t *TokenLedger) snapshot(s *domain.LedgerSnapshot) {
	s.Token = t.Info()
	s.Balances = maps.Clone(t.balances)
	s.Escrow = maps.Clone(t.escrow)
	s.Allowances = make(map[common.Address]map[common.Address]domain.Amount, len(t.allowances))
	for owner, m := range t.allowances {
		if len(m) > 0 {
			s.Allowances[owner] = maps.Clone(m)
		}
	}
	for a := range t.claimed {
		s.Claimed = append(s.Claimed, a)
	}
	slices.SortFunc(s.Claimed, func(a, b common.Address) int { return a.Cmp(b) })
}

// audit verifies supply conservation.
func (t *TokenLedger) audit() error {
	var sum domain.Amount
	for a, b := range t.balances {
		var ok bool
		if sum, ok = sum.Add(b); !ok {
			return fmt.Errorf("balance sum overflows at %s", a.Hex())
		}
	}
	for id, e := range t.escrow {
		var ok bool
		if sum, ok = sum.Add(e); !ok {
			return fmt.Errorf("escrow sum overflows at project %d", id)
		}
	}
	if !sum.Eq(t.supply) {
		return fmt.Errorf("balances plus escrow %s != total supply %s", sum, t.supply)
	}
	return nil
}

func mustAdd(a, b domain.Amount) domain.Amount {
	out, ok := a.Add(b)
	if !ok {
		panic(fmt.Sprintf("ledger: amount overflow %s + %s", a, b))
	}
	return out
}

func mustSub(a, b domain.Amount) domain.Amount {
	out, ok := a.Sub(b)
	if !ok {
		panic(fmt.Sprintf("ledger: amount underflow %s - %s", a, b))
	}
	return out
}
