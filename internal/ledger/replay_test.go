package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// busyDay drives a mix of every operation through f.
func busyDay(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	f.fund(t, 500, alice, bob)
	_, err := f.eng.ClaimTokens(ctx, carol)
	require.NoError(t, err)
	require.NoError(t, f.eng.Approve(ctx, carol, market, amt(200)))

	p1 := f.project(t, alice, 10, 5)
	p2 := f.project(t, admin, 25, 3)
	require.NoError(t, f.eng.FundProject(ctx, alice, p1, amt(40)))

	f.clock.Advance(10 * time.Minute)
	t1, err := f.eng.PurchaseTicket(ctx, bob, p1, 0)
	require.NoError(t, err)
	_, err = f.eng.PurchaseTicket(ctx, carol, p1, 1)
	require.NoError(t, err)
	t3, err := f.eng.PurchaseTicket(ctx, carol, p2, 0)
	require.NoError(t, err)

	o1, err := f.eng.ListTicket(ctx, bob, t1, amt(33))
	require.NoError(t, err)
	_, err = f.eng.BuyListedTicket(ctx, carol, o1)
	require.NoError(t, err)

	o2, err := f.eng.ListTicket(ctx, carol, t3, amt(12))
	require.NoError(t, err)
	require.NoError(t, f.eng.CancelOrder(ctx, carol, o2))
	require.NoError(t, f.eng.TransferTicket(ctx, carol, t3, dave))

	f.clock.Advance(2 * time.Hour)
	_, err = f.eng.SettleProject(ctx, alice, p1, 0)
	require.NoError(t, err)
	require.NoError(t, f.eng.Transfer(ctx, bob, dave, amt(7)))
	require.NoError(t, f.eng.CloseProject(ctx, admin, p2))

	// Rejected commands never reach the journal.
	_, err = f.eng.PurchaseTicket(ctx, bob, p2, 0)
	require.Error(t, err)
}

func TestReplayRebuildsIdenticalState(t *testing.T) {
	f := newFixture(t)
	busyDay(t, f)
	require.NoError(t, f.eng.Audit())

	want := f.eng.Snapshot()
	cmds := f.journal.all()
	require.Len(t, cmds, int(want.CommandSeq))

	fresh, err := New(Config{
		Admin:        admin,
		Market:       market,
		FaucetAmount: domain.NewAmount(1000),
		Clock:        NewManualClock(genesis.Add(365 * 24 * time.Hour)),
	})
	require.NoError(t, err)
	require.NoError(t, fresh.Replay(context.Background(), cmds))

	got := fresh.Snapshot()
	got.TakenAt = want.TakenAt
	assert.Equal(t, want, got)
	require.NoError(t, fresh.Audit())
}

func TestReplayRejectsGaps(t *testing.T) {
	f := newFixture(t)
	busyDay(t, f)
	cmds := f.journal.all()

	fresh, err := New(Config{Admin: admin, Market: market, FaucetAmount: domain.NewAmount(1000)})
	require.NoError(t, err)
	err = fresh.Replay(context.Background(), cmds[1:])
	assert.ErrorContains(t, err, "expected seq 1")
}

func TestJournalFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, 100, alice)
	pid := f.project(t, admin, 10, 5)

	before := f.eng.Snapshot()
	events := len(f.sink.events)

	f.journal.fail = errors.New("disk full")
	_, err := f.eng.PurchaseTicket(ctx, alice, pid, 0)
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))

	after := f.eng.Snapshot()
	after.TakenAt = before.TakenAt
	assert.Equal(t, before, after)
	assert.Len(t, f.sink.events, events)
}

func TestEventsAreSequencedAndTagged(t *testing.T) {
	f := newFixture(t)
	busyDay(t, f)

	var last uint64
	for _, e := range f.sink.events {
		assert.Equal(t, last+1, e.Seq)
		last = e.Seq
		assert.Equal(t, e.Type.Topic(), e.Topic)
		assert.NotZero(t, e.CommandSeq)
	}
	_, eventSeq := f.eng.Seq()
	assert.Equal(t, last, eventSeq)

	created := f.sink.ofType(domain.EventProjectCreated)
	require.NotEmpty(t, created)
	assert.Equal(t, crypto.Keccak256Hash([]byte("ProjectCreated(uint256,address,string,uint256)")), created[0].Topic)
}
