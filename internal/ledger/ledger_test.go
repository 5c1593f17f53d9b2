package ledger

import (
	"sync"
	"testing"

	"HodlFarm/internal/amount"
	"HodlFarm/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = model.MustParseAddress("0x00000000000000000000000000000000000a11ce")
	bob   = model.MustParseAddress("0x0000000000000000000000000000000000000b0b")
)

func TestBalanceOf_UnknownAccountIsZero(t *testing.T) {
	l := New()
	assert.True(t, l.BalanceOf(alice, model.Collateral).IsZero())
	assert.True(t, l.BalanceOf(alice, model.Reward).IsZero())
}

func TestIssue_RaisesSupply(t *testing.T) {
	l := New()
	require.NoError(t, l.Issue(model.Reward, alice, amount.FromUnits(21)))
	require.NoError(t, l.Issue(model.Reward, bob, amount.FromUnits(4)))

	assert.Equal(t, "25", l.Supply(model.Reward).String())
	assert.True(t, l.Supply(model.Collateral).IsZero())
	assert.Equal(t, []model.Address{alice, bob}, l.Holders(model.Reward))
}

func TestTransfer_MovesFunds(t *testing.T) {
	l := New()
	require.NoError(t, l.Issue(model.Collateral, alice, amount.FromUnits(100)))

	require.NoError(t, l.Transfer(model.Collateral, alice, bob, amount.MustParse("40.5")))

	assert.Equal(t, "59.5", l.BalanceOf(alice, model.Collateral).String())
	assert.Equal(t, "40.5", l.BalanceOf(bob, model.Collateral).String())
	assert.True(t, l.BalanceOf(bob, model.Reward).IsZero(), "tokens are separate tables")
}

func TestTransfer_InsufficientBalanceChangesNothing(t *testing.T) {
	l := New()
	require.NoError(t, l.Issue(model.Collateral, alice, amount.FromUnits(10)))

	err := l.Transfer(model.Collateral, alice, bob, amount.FromUnits(11))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	assert.Equal(t, "10", l.BalanceOf(alice, model.Collateral).String())
	assert.True(t, l.BalanceOf(bob, model.Collateral).IsZero())
}

func TestTransfer_ZeroAndSelf(t *testing.T) {
	l := New()
	require.NoError(t, l.Transfer(model.Reward, alice, bob, amount.Zero()))
	require.NoError(t, l.Issue(model.Reward, alice, amount.FromUnits(1)))
	require.NoError(t, l.Transfer(model.Reward, alice, alice, amount.FromUnits(1)))
	assert.Equal(t, "1", l.BalanceOf(alice, model.Reward).String())

	err := l.Transfer(model.Reward, alice, alice, amount.FromUnits(2))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestTransfer_UnknownToken(t *testing.T) {
	l := New()
	assert.ErrorIs(t, l.Transfer(model.Token(9), alice, bob, amount.FromUnits(1)), ErrUnknownToken)
	assert.ErrorIs(t, l.Issue(model.Token(9), alice, amount.FromUnits(1)), ErrUnknownToken)
}

func TestTransfer_ConcurrentConservesSupply(t *testing.T) {
	l := New()
	require.NoError(t, l.Issue(model.Collateral, alice, amount.FromUnits(1000)))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = l.Transfer(model.Collateral, alice, bob, amount.FromUnits(3))
		}()
		go func() {
			defer wg.Done()
			_ = l.Transfer(model.Collateral, bob, alice, amount.FromUnits(2))
		}()
	}
	wg.Wait()

	total, err := l.BalanceOf(alice, model.Collateral).Add(l.BalanceOf(bob, model.Collateral))
	require.NoError(t, err)
	assert.True(t, total.Eq(l.Supply(model.Collateral)))
}

func TestSnapshotRestore(t *testing.T) {
	l := New()
	require.NoError(t, l.Issue(model.Collateral, alice, amount.FromUnits(7)))
	require.NoError(t, l.Issue(model.Reward, bob, amount.FromUnits(3)))

	balances, supply := l.Snapshot()

	// snapshot is a copy
	require.NoError(t, l.Transfer(model.Collateral, alice, bob, amount.FromUnits(7)))
	assert.Equal(t, "7", balances[model.Collateral][alice].String())

	other := New()
	other.Restore(balances, supply)
	assert.Equal(t, "7", other.BalanceOf(alice, model.Collateral).String())
	assert.Equal(t, "3", other.BalanceOf(bob, model.Reward).String())
	assert.Equal(t, "7", other.Supply(model.Collateral).String())
}
