package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
)

func TestSettlementSplitsPoolWithRemainderToLowestTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, 100, alice, bob, carol)
	pid := f.project(t, admin, 10, 10)

	t1, err := f.eng.PurchaseTicket(ctx, alice, pid, 0)
	require.NoError(t, err)
	t2, err := f.eng.PurchaseTicket(ctx, bob, pid, 0)
	require.NoError(t, err)
	t3, err := f.eng.PurchaseTicket(ctx, carol, pid, 0)
	require.NoError(t, err)
	_, err = f.eng.PurchaseTicket(ctx, carol, pid, 1)
	require.NoError(t, err)

	// Pool 40 over three winners: 13 each, remainder 1 to the first.
	plan, err := f.eng.SettleProject(ctx, admin, pid, 0)
	require.NoError(t, err)
	require.Len(t, plan.Payouts, 3)
	assert.Equal(t, t1, plan.Payouts[0].TicketID)
	assert.Equal(t, amt(14), plan.Payouts[0].Amount)
	assert.Equal(t, amt(13), plan.Payouts[1].Amount)
	assert.Equal(t, amt(13), plan.Payouts[2].Amount)

	assert.Equal(t, amt(90+14), f.eng.BalanceOf(alice))
	assert.Equal(t, amt(90+13), f.eng.BalanceOf(bob))
	assert.Equal(t, amt(80+13), f.eng.BalanceOf(carol))

	for _, id := range []uint64{t1, t2, t3} {
		tk, err := f.eng.Ticket(id)
		require.NoError(t, err)
		assert.True(t, tk.Paid)
	}
	require.NoError(t, f.eng.Audit())
}

func TestSettlementWithoutWinnersRefundsCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, 100, alice, bob)
	pid := f.project(t, bob, 10, 10)

	_, err := f.eng.PurchaseTicket(ctx, alice, pid, 0)
	require.NoError(t, err)

	plan, err := f.eng.SettleProject(ctx, bob, pid, 1)
	require.NoError(t, err)
	assert.True(t, plan.Refund)
	assert.Zero(t, plan.Winners)
	assert.Equal(t, amt(110), f.eng.BalanceOf(bob))
	assert.True(t, f.eng.EscrowOf(pid).IsZero())

	prizes := f.sink.ofType(domain.EventPrizeDistributed)
	require.Len(t, prizes, 1)
	assert.Zero(t, prizes[0].TicketID)
	assert.Equal(t, bob, prizes[0].To)
	require.NoError(t, f.eng.Audit())
}

func TestSettlementCancelsOpenOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, 100, alice)
	pid := f.project(t, admin, 10, 10)
	tid, err := f.eng.PurchaseTicket(ctx, alice, pid, 0)
	require.NoError(t, err)
	oid, err := f.eng.ListTicket(ctx, alice, tid, amt(50))
	require.NoError(t, err)

	plan, err := f.eng.SettleProject(ctx, admin, pid, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{oid}, plan.CancelOrders)

	o, err := f.eng.Order(oid)
	require.NoError(t, err)
	assert.False(t, o.Active)
	assert.Equal(t, domain.OrderCancelled, o.Outcome)

	_, err = f.eng.ListTicket(ctx, alice, tid, amt(50))
	assert.ErrorIs(t, err, domain.ErrProjectInactive)
	require.NoError(t, f.eng.Audit())
}

func TestSettlementFailureOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.project(t, bob, 10, 10)

	_, err := f.eng.SettleProject(ctx, alice, pid, 9)
	assert.ErrorIs(t, err, domain.ErrUnauthorized, "role check precedes option check")

	_, err = f.eng.SettleProject(ctx, admin, pid, 9)
	assert.ErrorIs(t, err, domain.ErrInvalidOption)

	_, err = f.eng.SettleProject(ctx, admin, 42, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.eng.SettleProject(ctx, bob, pid, 0)
	require.NoError(t, err)

	_, err = f.eng.SettleProject(ctx, alice, pid, 9)
	assert.ErrorIs(t, err, domain.ErrAlreadySettled, "settled check precedes role check")
}

func TestPreviewSettlementDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, 100, alice)
	pid := f.project(t, admin, 10, 10)
	_, err := f.eng.PurchaseTicket(ctx, alice, pid, 1)
	require.NoError(t, err)

	before, _ := f.eng.Seq()
	plan, err := f.eng.PreviewSettlement(pid, 1)
	require.NoError(t, err)
	assert.Equal(t, amt(10), plan.Pool)
	after, _ := f.eng.Seq()
	assert.Equal(t, before, after)
	assert.Equal(t, amt(10), f.eng.EscrowOf(pid))
}

func TestFundAndCloseProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, 100, alice, bob)
	pid := f.project(t, alice, 10, 10)

	err := f.eng.FundProject(ctx, bob, pid, amt(30))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = f.eng.FundProject(ctx, alice, pid, amt(0))
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	require.NoError(t, f.eng.FundProject(ctx, alice, pid, amt(30)))
	p, err := f.eng.Project(pid)
	require.NoError(t, err)
	assert.Equal(t, amt(30), p.TotalPrize)
	assert.Equal(t, amt(70), f.eng.BalanceOf(alice))

	err = f.eng.CloseProject(ctx, bob, pid)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	require.NoError(t, f.eng.CloseProject(ctx, admin, pid))

	_, err = f.eng.PurchaseTicket(ctx, bob, pid, 0)
	assert.ErrorIs(t, err, domain.ErrProjectInactive)
	assert.Empty(t, f.eng.ActiveProjects())

	// A closed project can still be settled; the funded pool goes back.
	plan, err := f.eng.SettleProject(ctx, alice, pid, 0)
	require.NoError(t, err)
	assert.True(t, plan.Refund)
	assert.Equal(t, amt(100), f.eng.BalanceOf(alice))
	require.NoError(t, f.eng.Audit())
}
