package farm

import (
	"HodlFarm/internal/accrual"
	"HodlFarm/internal/amount"
	"HodlFarm/internal/model"
)

// readAccount runs fn under the same locks an operation on account holds,
// so it never observes a call half applied.
func (f *Farm) readAccount(account model.Address, fn func()) {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	unlock := f.locks.lock(string(account))
	defer unlock()
	fn()
}

func (f *Farm) CollateralBalanceOf(account model.Address) (bal amount.Amount) {
	f.readAccount(account, func() { bal = f.ledger.BalanceOf(account, model.Collateral) })
	return bal
}

func (f *Farm) RewardBalanceOf(account model.Address) (bal amount.Amount) {
	f.readAccount(account, func() { bal = f.ledger.BalanceOf(account, model.Reward) })
	return bal
}

func (f *Farm) StakedAmountOf(account model.Address) (staked amount.Amount) {
	f.readAccount(account, func() { staked = f.registry.Get(account).Staked })
	return staked
}

// PendingYieldOf previews the account's yield at the current instant
// without settling it.
func (f *Farm) PendingYieldOf(account model.Address) (yield amount.Amount) {
	f.readAccount(account, func() {
		yield = accrual.Preview(f.registry.Get(account), f.now().Unix(), f.rate)
	})
	return yield
}

func (f *Farm) IsStaking(account model.Address) (staking bool) {
	f.readAccount(account, func() { staking = f.registry.Get(account).IsStaking() })
	return staking
}

// PoolBalance is the reward still available for payout. It waits for
// in-flight calls so it never counts a payout that may still roll back.
func (f *Farm) PoolBalance() amount.Amount {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	return f.ledger.BalanceOf(f.address, model.Reward)
}

// FarmCollateral is the collateral held on behalf of all stakers.
func (f *Farm) FarmCollateral() amount.Amount {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	return f.ledger.BalanceOf(f.address, model.Collateral)
}

// Account reads every balance of one account as of a single instant.
func (f *Farm) Account(account model.Address) (view model.AccountView) {
	f.readAccount(account, func() {
		p := f.registry.Get(account)
		view = model.AccountView{
			Address:           account,
			CollateralBalance: f.ledger.BalanceOf(account, model.Collateral),
			RewardBalance:     f.ledger.BalanceOf(account, model.Reward),
			Staked:            p.Staked,
			PendingYield:      accrual.Preview(p, f.now().Unix(), f.rate),
			IsStaking:         p.IsStaking(),
		}
	})
	return view
}

// Stats summarizes the pool from a consistent view of all positions.
func (f *Farm) Stats() model.PoolStats {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()

	at := f.now()
	stats := model.PoolStats{
		RewardPool:     f.ledger.BalanceOf(f.address, model.Reward),
		FarmCollateral: f.ledger.BalanceOf(f.address, model.Collateral),
		At:             at,
	}
	f.registry.Each(func(_ model.Address, p model.Position) {
		if p.IsStaking() {
			stats.Stakers++
			if v, err := stats.TotalStaked.Add(p.Staked); err == nil {
				stats.TotalStaked = v
			}
		}
		if v, err := stats.TotalPending.Add(accrual.Preview(p, at.Unix(), f.rate)); err == nil {
			stats.TotalPending = v
		}
	})
	return stats
}
