package ledger

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
)

func TestFaucetClaimOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.eng.ClaimTokens(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, amt(1000), got)
	assert.True(t, f.eng.HasClaimed(alice))
	assert.Equal(t, amt(1000), f.eng.TotalSupply())

	_, err = f.eng.ClaimTokens(ctx, alice)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Equal(t, amt(1000), f.eng.BalanceOf(alice))
	assert.Len(t, f.sink.ofType(domain.EventTokensClaimed), 1)
}

func TestMintIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	err := f.eng.Mint(context.Background(), alice, alice, amt(5))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))
}

func TestMintOverflowIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.eng.Mint(ctx, admin, alice, domain.MaxAmount()))
	err := f.eng.Mint(ctx, admin, bob, amt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}

func TestTransferAndTransferFrom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.eng.Mint(ctx, admin, alice, amt(50)))

	err := f.eng.Transfer(ctx, alice, bob, amt(51))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, f.eng.Transfer(ctx, alice, bob, amt(20)))
	assert.Equal(t, amt(30), f.eng.BalanceOf(alice))
	assert.Equal(t, amt(20), f.eng.BalanceOf(bob))

	err = f.eng.TransferFrom(ctx, carol, alice, carol, amt(5))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds, "no allowance")

	require.NoError(t, f.eng.Approve(ctx, alice, carol, amt(10)))
	require.NoError(t, f.eng.TransferFrom(ctx, carol, alice, dave, amt(4)))
	assert.Equal(t, amt(6), f.eng.Allowance(alice, carol))
	assert.Equal(t, amt(4), f.eng.BalanceOf(dave))

	err = f.eng.TransferFrom(ctx, carol, alice, dave, amt(7))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.NoError(t, f.eng.Audit())
}

func TestMaxAllowanceIsNeverDecremented(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, 100, alice)
	pid := f.project(t, admin, 10, 5)
	_, err := f.eng.PurchaseTicket(ctx, alice, pid, 0)
	require.NoError(t, err)
	assert.True(t, f.eng.Allowance(alice, market).IsMax())
}

func TestAdjustAllowance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.eng.IncreaseAllowance(ctx, alice, bob, amt(10)))
	require.NoError(t, f.eng.IncreaseAllowance(ctx, alice, bob, amt(5)))
	assert.Equal(t, amt(15), f.eng.Allowance(alice, bob))

	require.NoError(t, f.eng.DecreaseAllowance(ctx, alice, bob, amt(15)))
	assert.True(t, f.eng.Allowance(alice, bob).IsZero())

	err := f.eng.DecreaseAllowance(ctx, alice, bob, amt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	require.NoError(t, f.eng.Approve(ctx, alice, bob, domain.MaxAmount()))
	err = f.eng.IncreaseAllowance(ctx, alice, bob, amt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}

func TestTransferAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.eng.TransferAdmin(ctx, alice, alice)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, f.eng.TransferAdmin(ctx, admin, alice))
	assert.Equal(t, alice, f.eng.Admin())

	require.NoError(t, f.eng.Mint(ctx, alice, bob, amt(1)))
	err = f.eng.Mint(ctx, admin, bob, amt(1))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestMissingActorIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.ClaimTokens(context.Background(), common.Address{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
