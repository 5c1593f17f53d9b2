package farm

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"HodlFarm/internal/amount"
	"HodlFarm/internal/metrics"
	"HodlFarm/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	farmAddr = model.MustParseAddress("0x00000000000000000000000000000000000000ff")
	treasury = model.MustParseAddress("0x00000000000000000000000000000000000000ee")
	alice    = model.MustParseAddress("0x00000000000000000000000000000000000a11ce")
	bob      = model.MustParseAddress("0x0000000000000000000000000000000000000b0b")
	carol    = model.MustParseAddress("0x00000000000000000000000000000000000ca201")
)

type testClock struct {
	mu  sync.Mutex
	sec int64
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.sec, 0)
}

func (c *testClock) Set(sec int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sec = sec
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []model.OperationEvent
}

func (r *recordingRecorder) RecordOperation(evt *model.OperationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *evt)
	return nil
}
func (r *recordingRecorder) RecordPoolSnapshot(_ *model.PoolStats) error { return nil }
func (r *recordingRecorder) RecentOperations(_ model.Address, _ int) ([]model.OperationEvent, error) {
	return nil, nil
}
func (r *recordingRecorder) Close() error { return nil }

func newTestFarm(t *testing.T, rate, pool string, opts ...Option) (*Farm, *testClock) {
	t.Helper()
	clock := &testClock{}
	f := New(farmAddr, amount.MustParse(rate), append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, f.Initialize(Genesis{
		RewardPool:     amount.MustParse(pool),
		Treasury:       treasury,
		TreasuryReward: amount.FromUnits(1000),
		Collateral: map[model.Address]amount.Amount{
			alice: amount.FromUnits(100),
			bob:   amount.FromUnits(100),
			carol: amount.FromUnits(100),
		},
	}))
	return f, clock
}

func TestReferenceScenario(t *testing.T) {
	f, clock := newTestFarm(t, "0.01", "1000")

	require.NoError(t, f.Stake(alice, amount.FromUnits(100)))
	assert.True(t, f.CollateralBalanceOf(alice).IsZero())
	assert.Equal(t, "100", f.StakedAmountOf(alice).String())
	assert.Equal(t, "100", f.FarmCollateral().String())
	assert.True(t, f.IsStaking(alice))

	clock.Set(10)
	assert.Equal(t, "10", f.PendingYieldOf(alice).String())

	require.NoError(t, f.WithdrawYield(alice))
	assert.Equal(t, "10", f.RewardBalanceOf(alice).String())
	assert.True(t, f.PendingYieldOf(alice).IsZero())
	assert.Equal(t, "990", f.PoolBalance().String())
}

func TestStake_InvalidAmount(t *testing.T) {
	f, _ := newTestFarm(t, "0.01", "1000")
	before := f.Snapshot()
	assert.ErrorIs(t, f.Stake(alice, amount.Zero()), ErrInvalidAmount)
	assert.Equal(t, before, f.Snapshot())
}

func TestStake_InsufficientBalance(t *testing.T) {
	f, _ := newTestFarm(t, "0.01", "1000")
	before := f.Snapshot()
	err := f.Stake(alice, amount.MustParse("100.000000000000000001"))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, before, f.Snapshot())
}

func TestUnstake_NotStaking(t *testing.T) {
	f, _ := newTestFarm(t, "0.01", "1000")
	before := f.Snapshot()
	assert.ErrorIs(t, f.Unstake(alice), ErrNotStaking)
	assert.Equal(t, before, f.Snapshot())
}

func TestUnstake_PreservesYield(t *testing.T) {
	f, clock := newTestFarm(t, "0.01", "1000")
	require.NoError(t, f.Stake(alice, amount.FromUnits(100)))

	clock.Set(10)
	require.NoError(t, f.Unstake(alice))
	assert.Equal(t, "100", f.CollateralBalanceOf(alice).String())
	assert.True(t, f.StakedAmountOf(alice).IsZero())
	assert.False(t, f.IsStaking(alice))
	assert.Equal(t, "10", f.PendingYieldOf(alice).String())

	clock.Set(20)
	assert.Equal(t, "10", f.PendingYieldOf(alice).String(), "no accrual while idle")

	require.NoError(t, f.WithdrawYield(alice))
	assert.Equal(t, "10", f.RewardBalanceOf(alice).String())
	assert.ErrorIs(t, f.WithdrawYield(alice), ErrNothingToWithdraw)
}

func TestWithdraw_NothingToWithdraw(t *testing.T) {
	f, clock := newTestFarm(t, "0.01", "1000")
	assert.ErrorIs(t, f.WithdrawYield(alice), ErrNothingToWithdraw)

	// staked, but no time has passed
	require.NoError(t, f.Stake(alice, amount.FromUnits(1)))
	assert.ErrorIs(t, f.WithdrawYield(alice), ErrNothingToWithdraw)

	clock.Set(1)
	assert.NoError(t, f.WithdrawYield(alice))
}

func TestWithdraw_PoolExhaustedIsIdempotent(t *testing.T) {
	f, clock := newTestFarm(t, "0.01", "5")
	require.NoError(t, f.Stake(alice, amount.FromUnits(100)))
	clock.Set(10)

	before := f.Snapshot()
	for i := 0; i < 3; i++ {
		err := f.WithdrawYield(alice)
		require.ErrorIs(t, err, ErrPoolExhausted)
		assert.NotErrorIs(t, err, ErrInsufficientBalance)
		assert.True(t, IsRetryable(err))
		assert.Equal(t, "10", f.PendingYieldOf(alice).String())
		assert.True(t, f.RewardBalanceOf(alice).IsZero())
		assert.Equal(t, "5", f.PoolBalance().String())
		assert.Equal(t, before, f.Snapshot())
	}

	// replenishment makes the same call succeed
	require.NoError(t, f.Replenish(treasury, amount.FromUnits(100)))
	require.NoError(t, f.WithdrawYield(alice))
	assert.Equal(t, "10", f.RewardBalanceOf(alice).String())
	assert.Equal(t, "95", f.PoolBalance().String())
}

func TestReplenish(t *testing.T) {
	f, _ := newTestFarm(t, "0.01", "5")
	assert.ErrorIs(t, f.Replenish(treasury, amount.Zero()), ErrInvalidAmount)
	assert.ErrorIs(t, f.Replenish(alice, amount.FromUnits(1)), ErrInsufficientBalance)
	assert.ErrorIs(t, f.Replenish(farmAddr, amount.FromUnits(1)), ErrInvalidAccount)

	require.NoError(t, f.Replenish(treasury, amount.FromUnits(1000)))
	assert.Equal(t, "1005", f.PoolBalance().String())
	assert.True(t, f.RewardBalanceOf(treasury).IsZero())
}

func TestClockRegressionRejected(t *testing.T) {
	f, clock := newTestFarm(t, "0.01", "1000")
	clock.Set(100)
	require.NoError(t, f.Stake(alice, amount.FromUnits(50)))

	clock.Set(50)
	before := f.Snapshot()
	assert.ErrorIs(t, f.Stake(alice, amount.FromUnits(1)), ErrInvalidCheckpoint)
	assert.ErrorIs(t, f.Unstake(alice), ErrInvalidCheckpoint)
	assert.ErrorIs(t, f.WithdrawYield(alice), ErrInvalidCheckpoint)
	assert.Equal(t, before, f.Snapshot())
	assert.True(t, f.PendingYieldOf(alice).IsZero())

	// other accounts are unaffected
	assert.NoError(t, f.Stake(bob, amount.FromUnits(1)))
}

func TestNoAccrualLossAcrossMutation(t *testing.T) {
	f, clock := newTestFarm(t, "0.01", "1000")

	require.NoError(t, f.Stake(alice, amount.FromUnits(50)))
	require.NoError(t, f.Stake(bob, amount.FromUnits(50)))

	clock.Set(10)
	require.NoError(t, f.Stake(alice, amount.FromUnits(50)))
	assert.Equal(t, "5", f.PendingYieldOf(alice).String(), "first interval uses the old stake")

	clock.Set(20)
	require.NoError(t, f.Unstake(alice))

	// bob never topped up: 50 * 0.01 * 20
	assert.Equal(t, "10", f.PendingYieldOf(bob).String())
	// alice: 50 * 0.01 * 10 + 100 * 0.01 * 10
	assert.Equal(t, "15", f.PendingYieldOf(alice).String())
	assert.Equal(t, "100", f.CollateralBalanceOf(alice).String())
}

func TestStakeTopUpThenUnstakeImmediately(t *testing.T) {
	f, clock := newTestFarm(t, "0.01", "1000")
	require.NoError(t, f.Stake(alice, amount.FromUnits(40)))
	clock.Set(10)
	require.NoError(t, f.Stake(alice, amount.FromUnits(60)))
	require.NoError(t, f.Unstake(alice))

	// identical to never having topped up
	assert.Equal(t, "4", f.PendingYieldOf(alice).String())
}

func TestPendingYield_Monotonic(t *testing.T) {
	f, clock := newTestFarm(t, "0.0001", "1000")
	require.NoError(t, f.Stake(alice, amount.MustParse("12.5")))

	prev := f.PendingYieldOf(alice)
	for sec := int64(1); sec <= 30; sec++ {
		clock.Set(sec)
		cur := f.PendingYieldOf(alice)
		assert.True(t, prev.Lt(cur))
		prev = cur
	}
}

func TestInitialize(t *testing.T) {
	f := New(farmAddr, amount.MustParse("0.01"))
	assert.ErrorIs(t, f.Stake(alice, amount.FromUnits(1)), ErrNotInitialized)
	assert.False(t, f.Initialized())

	assert.ErrorIs(t, f.Initialize(Genesis{}), ErrInvalidAmount)
	assert.ErrorIs(t, f.Initialize(Genesis{
		RewardPool: amount.FromUnits(1),
		Collateral: map[model.Address]amount.Amount{farmAddr: amount.FromUnits(1)},
	}), ErrInvalidAccount)
	assert.ErrorIs(t, f.Initialize(Genesis{
		RewardPool:     amount.FromUnits(1),
		TreasuryReward: amount.FromUnits(1),
	}), ErrInvalidAccount)

	require.NoError(t, f.Initialize(Genesis{RewardPool: amount.FromUnits(21000000)}))
	assert.True(t, f.Initialized())
	assert.Equal(t, "21000000", f.PoolBalance().String())

	assert.ErrorIs(t, f.Initialize(Genesis{RewardPool: amount.FromUnits(1)}), ErrAlreadyInitialized)
	assert.Equal(t, "21000000", f.PoolBalance().String())
}

func TestFarmAddressCannotStake(t *testing.T) {
	f, _ := newTestFarm(t, "0.01", "1000")
	assert.ErrorIs(t, f.Stake(farmAddr, amount.FromUnits(1)), ErrInvalidAccount)
	assert.ErrorIs(t, f.WithdrawYield(""), ErrInvalidAccount)
}

func TestConservation_RandomOperations(t *testing.T) {
	f, clock := newTestFarm(t, "0.001", "50")
	rng := rand.New(rand.NewSource(42))
	accounts := []model.Address{alice, bob, carol}
	collateralSupply := f.ledger.Supply(model.Collateral)
	rewardSupply := f.ledger.Supply(model.Reward)

	var now int64
	for i := 0; i < 500; i++ {
		now += int64(rng.Intn(4))
		clock.Set(now)
		a := accounts[rng.Intn(len(accounts))]

		before := f.Account(a)
		var err error
		switch rng.Intn(4) {
		case 0, 1:
			err = f.Stake(a, amount.FromUnits(uint64(rng.Intn(40))))
		case 2:
			err = f.Unstake(a)
		case 3:
			err = f.WithdrawYield(a)
		}
		if err != nil {
			assert.Equal(t, before, f.Account(a), "failed call changed state: %v", err)
		}

		collateral := f.FarmCollateral()
		staked := amount.Zero()
		reward := f.PoolBalance()
		for _, acct := range accounts {
			var aerr error
			collateral, aerr = collateral.Add(f.CollateralBalanceOf(acct))
			require.NoError(t, aerr)
			staked, aerr = staked.Add(f.StakedAmountOf(acct))
			require.NoError(t, aerr)
			reward, aerr = reward.Add(f.RewardBalanceOf(acct))
			require.NoError(t, aerr)
		}
		reward, err = reward.Add(f.RewardBalanceOf(treasury))
		require.NoError(t, err)

		require.True(t, collateral.Eq(collateralSupply), "collateral conservation at step %d", i)
		require.True(t, staked.Eq(f.FarmCollateral()), "stake cache matches farm collateral at step %d", i)
		require.True(t, reward.Eq(rewardSupply), "reward conservation at step %d", i)
	}
}

func TestConcurrentWithdrawalsNeverOverdrawPool(t *testing.T) {
	const stakers = 10
	clock := &testClock{}
	f := New(farmAddr, amount.FromUnits(1), WithClock(clock.Now))
	genesis := Genesis{RewardPool: amount.FromUnits(15), Collateral: map[model.Address]amount.Amount{}}
	addrs := make([]model.Address, stakers)
	for i := range addrs {
		addrs[i] = model.MustParseAddress(fmt.Sprintf("0x%040x", 0x1000+i))
		genesis.Collateral[addrs[i]] = amount.FromUnits(1)
	}
	require.NoError(t, f.Initialize(genesis))
	for _, a := range addrs {
		require.NoError(t, f.Stake(a, amount.FromUnits(1)))
	}
	clock.Set(5)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		paid      int
		exhausted int
	)
	for _, a := range addrs {
		wg.Add(1)
		go func(a model.Address) {
			defer wg.Done()
			err := f.WithdrawYield(a)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				paid++
			case IsRetryable(err):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(a)
	}
	wg.Wait()

	assert.Equal(t, 3, paid)
	assert.Equal(t, stakers-3, exhausted)
	assert.True(t, f.PoolBalance().IsZero())
}

func TestStats(t *testing.T) {
	f, clock := newTestFarm(t, "0.01", "1000")
	require.NoError(t, f.Stake(alice, amount.FromUnits(100)))
	require.NoError(t, f.Stake(bob, amount.FromUnits(50)))
	clock.Set(10)
	require.NoError(t, f.Unstake(bob))

	s := f.Stats()
	assert.Equal(t, 1, s.Stakers)
	assert.Equal(t, "100", s.TotalStaked.String())
	assert.Equal(t, "100", s.FarmCollateral.String())
	assert.Equal(t, "15", s.TotalPending.String())
	assert.Equal(t, "1000", s.RewardPool.String())
	assert.True(t, s.Shortfall().IsZero())
}

func TestAccountView(t *testing.T) {
	f, clock := newTestFarm(t, "0.01", "1000")
	require.NoError(t, f.Stake(alice, amount.FromUnits(60)))
	clock.Set(5)

	v := f.Account(alice)
	assert.Equal(t, alice, v.Address)
	assert.Equal(t, "40", v.CollateralBalance.String())
	assert.Equal(t, "60", v.Staked.String())
	assert.Equal(t, "3", v.PendingYield.String())
	assert.True(t, v.RewardBalance.IsZero())
	assert.True(t, v.IsStaking)
}

func TestOpen_RestoresState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "farm.json")
	clock := &testClock{}
	rate := amount.MustParse("0.01")

	f, err := Open(path, farmAddr, rate, WithClock(clock.Now))
	require.NoError(t, err)
	assert.False(t, f.Initialized())
	require.NoError(t, f.Initialize(Genesis{
		RewardPool: amount.FromUnits(1000),
		Collateral: map[model.Address]amount.Amount{alice: amount.FromUnits(100)},
	}))
	require.NoError(t, f.Stake(alice, amount.FromUnits(30)))
	clock.Set(10)
	want := f.Account(alice)
	require.NoError(t, f.Close())

	reopened, err := Open(path, farmAddr, rate, WithClock(clock.Now))
	require.NoError(t, err)
	assert.True(t, reopened.Initialized())
	assert.Equal(t, want, reopened.Account(alice))
	assert.Equal(t, "3", reopened.PendingYieldOf(alice).String())
	assert.ErrorIs(t, reopened.Initialize(Genesis{RewardPool: amount.FromUnits(1)}), ErrAlreadyInitialized)
	require.NoError(t, reopened.Close())

	_, err = Open(path, treasury, rate)
	assert.ErrorIs(t, err, ErrAddressMismatch)

	// a failed Open must not keep the lock
	again, err := Open(path, farmAddr, rate)
	require.NoError(t, err)
	assert.NoError(t, again.Close())
}

func TestOpen_RefusesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farm.json")
	rate := amount.MustParse("0.01")

	daemon, err := Open(path, farmAddr, rate)
	require.NoError(t, err)
	require.NoError(t, daemon.Initialize(Genesis{
		RewardPool: amount.FromUnits(1000),
		Collateral: map[model.Address]amount.Amount{alice: amount.FromUnits(100)},
	}))

	_, err = Open(path, farmAddr, rate)
	require.ErrorIs(t, err, ErrStateLocked)
	assert.Contains(t, err.Error(), path+".lock")

	// the holder keeps working and its writes are the ones persisted
	require.NoError(t, daemon.Stake(alice, amount.FromUnits(40)))
	require.NoError(t, daemon.Close())
	assert.NoError(t, daemon.Close(), "closing twice is harmless")

	cli, err := Open(path, farmAddr, rate)
	require.NoError(t, err)
	defer cli.Close()
	assert.Equal(t, "40", cli.StakedAmountOf(alice).String())
	assert.Equal(t, "60", cli.CollateralBalanceOf(alice).String())
}

func TestExitedAccountStillRejectsClockRegression(t *testing.T) {
	f, clock := newTestFarm(t, "0.01", "1000")
	clock.Set(100)
	require.NoError(t, f.Stake(alice, amount.FromUnits(50)))
	require.NoError(t, f.Unstake(alice))
	require.False(t, f.IsStaking(alice))
	require.True(t, f.PendingYieldOf(alice).IsZero())

	clock.Set(50)
	before := f.Snapshot()
	assert.ErrorIs(t, f.Stake(alice, amount.FromUnits(1)), ErrInvalidCheckpoint)
	assert.Equal(t, before, f.Snapshot())

	clock.Set(100)
	assert.NoError(t, f.Stake(alice, amount.FromUnits(1)))
}

func TestQueriesNeverObserveHalfAppliedCalls(t *testing.T) {
	f, clock := newTestFarm(t, "0.01", "1000")
	require.NoError(t, f.Stake(alice, amount.FromUnits(50)))
	require.NoError(t, f.Stake(bob, amount.FromUnits(50)))
	clock.Set(20)

	total := func(a, b amount.Amount) string {
		sum, err := a.Add(b)
		require.NoError(t, err)
		return sum.String()
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 40; i++ {
			if err := f.Stake(alice, amount.FromUnits(1)); err != nil {
				t.Errorf("stake: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 40; i++ {
			err := f.WithdrawYield(bob)
			if err != nil && !errors.Is(err, ErrNothingToWithdraw) {
				t.Errorf("withdraw: %v", err)
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	for reads := 0; ; reads++ {
		select {
		case <-done:
			require.Positive(t, reads)
			assert.Equal(t, "90", f.StakedAmountOf(alice).String())
			assert.Equal(t, "10", f.RewardBalanceOf(bob).String())
			return
		default:
		}
		assert.Equal(t, "10", f.PendingYieldOf(alice).String())

		a := f.Account(alice)
		assert.Equal(t, "100", total(a.Staked, a.CollateralBalance))
		assert.Equal(t, "10", a.PendingYield.String())

		b := f.Account(bob)
		assert.Equal(t, "10", total(b.RewardBalance, b.PendingYield))
	}
}

func TestOperationsAreRecordedAndCounted(t *testing.T) {
	rec := &recordingRecorder{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	f, clock := newTestFarm(t, "0.01", "1000", WithRecorder(rec), WithMetrics(m))

	require.NoError(t, f.Stake(alice, amount.FromUnits(10)))
	assert.Error(t, f.Unstake(bob))
	clock.Set(10)
	require.NoError(t, f.WithdrawYield(alice))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 4)
	assert.Equal(t, model.OpInitialize, rec.events[0].Kind)
	assert.Equal(t, model.OpStake, rec.events[1].Kind)
	assert.True(t, rec.events[1].OK)
	assert.Equal(t, "10", rec.events[1].Amount.String())
	assert.Equal(t, model.OpUnstake, rec.events[2].Kind)
	assert.False(t, rec.events[2].OK)
	assert.Contains(t, rec.events[2].Error, "nothing staked")
	assert.Equal(t, model.OpWithdraw, rec.events[3].Kind)
	assert.Equal(t, "1", rec.events[3].Amount.String())
	assert.NotEmpty(t, rec.events[3].ID)

	count, err := testutil.GatherAndCount(reg, "hodlfarm_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
