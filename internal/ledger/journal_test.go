package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// appendOnly hides LastSeq so the engine cannot ask where the journal is.
type appendOnly struct{ j *memJournal }

func (a appendOnly) Append(ctx context.Context, cmd domain.Command) error {
	return a.j.Append(ctx, cmd)
}

func replayed(t *testing.T, f *fixture) domain.LedgerSnapshot {
	t.Helper()
	fresh, err := New(Config{Admin: admin, Market: market, FaucetAmount: domain.NewAmount(1000), Clock: f.clock})
	require.NoError(t, err)
	require.NoError(t, fresh.Replay(context.Background(), f.journal.all()))
	return fresh.Snapshot()
}

func TestJournalAckLostAfterWriteStillApplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, 100, alice, bob)
	pid := f.project(t, admin, 10, 5)

	f.journal.failAfterWrite = context.Canceled
	tid, err := f.eng.PurchaseTicket(ctx, alice, pid, 0)
	require.NoError(t, err, "the command is durable, so it must be live too")
	f.journal.failAfterWrite = nil

	owner, err := f.eng.OwnerOf(tid)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
	assert.Equal(t, amt(90), f.eng.BalanceOf(alice))
	assert.NoError(t, f.eng.Halted())

	// Later commands take the next sequence number instead of colliding.
	_, err = f.eng.PurchaseTicket(ctx, bob, pid, 1)
	require.NoError(t, err)
	require.NoError(t, f.eng.Transfer(ctx, alice, dave, amt(5)))

	live := f.eng.Snapshot()
	want := replayed(t, f)
	want.TakenAt = live.TakenAt
	assert.Equal(t, live, want)
	require.NoError(t, f.eng.Audit())
}

func TestJournalRejectedWriteKeepsAccepting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, 100, alice)
	pid := f.project(t, admin, 10, 5)
	seqBefore, _ := f.eng.Seq()

	f.journal.fail = errors.New("connection reset")
	_, err := f.eng.PurchaseTicket(ctx, alice, pid, 0)
	require.Error(t, err)
	assert.NoError(t, f.eng.Halted(), "the journal head proves nothing was written")
	f.journal.fail = nil

	_, err = f.eng.PurchaseTicket(ctx, alice, pid, 0)
	require.NoError(t, err)
	seqAfter, _ := f.eng.Seq()
	assert.Equal(t, seqBefore+1, seqAfter)
	assert.Equal(t, amt(90), f.eng.BalanceOf(alice))
}

func TestUnknownJournalOutcomeHaltsWrites(t *testing.T) {
	cases := map[string]func(f *fixture){
		"head unreadable": func(f *fixture) {
			f.journal.failAfterWrite = context.Canceled
			f.journal.headErr = errors.New("db unreachable")
		},
		"append timed out": func(f *fixture) {
			f.journal.fail = fmt.Errorf("postgres: append: %w", context.DeadlineExceeded)
		},
		"sequence taken": func(f *fixture) {
			f.journal.fail = fmt.Errorf("postgres: append: %w", domain.ErrSeqConflict)
		},
		"journal without head": func(f *fixture) {
			f.eng.journal = appendOnly{j: f.journal}
			f.journal.failAfterWrite = context.Canceled
		},
	}
	for name, breakJournal := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.fund(t, 100, alice)
			pid := f.project(t, admin, 10, 5)
			before := f.eng.Snapshot()

			breakJournal(f)
			_, err := f.eng.PurchaseTicket(ctx, alice, pid, 0)
			require.Error(t, err)
			require.Error(t, f.eng.Halted())

			f.journal.fail, f.journal.failAfterWrite, f.journal.headErr = nil, nil, nil
			written := len(f.journal.all())
			err = f.eng.Transfer(ctx, alice, bob, amt(1))
			require.ErrorIs(t, err, domain.ErrLedgerHalted)
			assert.Equal(t, domain.KindInternal, domain.KindOf(err))
			assert.Len(t, f.journal.all(), written, "a halted ledger journals nothing")

			after := f.eng.Snapshot()
			after.TakenAt = before.TakenAt
			assert.Equal(t, before, after)
		})
	}
}

// cancelAware fails like pgx does when its context is already done.
type cancelAware struct{ *memJournal }

func (c cancelAware) Append(ctx context.Context, cmd domain.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.memJournal.Append(ctx, cmd)
}

func TestJournalAppendOutlivesCallerCancellation(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 100, alice)
	f.eng.journal = cancelAware{f.journal}

	ctx, cancel := context.WithCancel(context.Background())
	f.eng.mu.Lock()
	// Cancel after submit's own check, as a client hanging up mid-request.
	cancel()
	err := f.eng.run(ctx, alice, &transferCmd{To: bob, Amount: amt(3)}, genesis, true)
	f.eng.mu.Unlock()

	require.NoError(t, err)
	assert.Equal(t, amt(3), f.eng.BalanceOf(bob))
	assert.NoError(t, f.eng.Halted())
}
