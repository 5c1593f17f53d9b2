package farm

import (
	"errors"
	"fmt"

	"HodlFarm/internal/accrual"
	"HodlFarm/internal/amount"
	"HodlFarm/internal/ledger"
	"HodlFarm/internal/model"
)

// Stake settles the account's yield to now, then moves amt collateral from
// the account into the farm and adds it to the position.
func (f *Farm) Stake(account model.Address, amt amount.Amount) error {
	return f.exec(model.OpStake, account, func(tx *txn, now int64) (amount.Amount, error) {
		if amt.IsZero() {
			return amount.Zero(), ErrInvalidAmount
		}
		prev, s, err := f.settle(tx, account, now)
		if err != nil {
			return amount.Zero(), err
		}
		staked, err := prev.Staked.Add(amt)
		if err != nil {
			return amount.Zero(), fmt.Errorf("stake: %w", err)
		}
		if err := f.transfer(tx, model.Collateral, account, f.address, amt); err != nil {
			return amount.Zero(), err
		}
		next := s.Position
		next.Staked = staked
		f.registry.Restore(account, next)
		return amt, nil
	})
}

// Unstake settles the account's yield to now and returns its whole stake.
// Unsettled yield is kept and can still be withdrawn.
func (f *Farm) Unstake(account model.Address) error {
	return f.exec(model.OpUnstake, account, func(tx *txn, now int64) (amount.Amount, error) {
		if !f.registry.Get(account).IsStaking() {
			return amount.Zero(), ErrNotStaking
		}
		prev, s, err := f.settle(tx, account, now)
		if err != nil {
			return amount.Zero(), err
		}
		if err := f.transfer(tx, model.Collateral, f.address, account, prev.Staked); err != nil {
			return amount.Zero(), err
		}
		next := s.Position
		next.Staked = amount.Zero()
		f.registry.Restore(account, next)
		return prev.Staked, nil
	})
}

// WithdrawYield settles the account's yield to now and pays all of it from
// the reward pool. If the pool cannot cover it the call fails with
// ErrPoolExhausted and nothing changes, not even the checkpoint.
func (f *Farm) WithdrawYield(account model.Address) error {
	return f.exec(model.OpWithdraw, account, func(tx *txn, now int64) (amount.Amount, error) {
		_, s, err := f.settle(tx, account, now)
		if err != nil {
			return amount.Zero(), err
		}
		owed := s.Position.Yield
		if owed.IsZero() {
			return amount.Zero(), ErrNothingToWithdraw
		}
		if err := f.transfer(tx, model.Reward, f.address, account, owed); err != nil {
			if errors.Is(err, ledger.ErrInsufficientBalance) {
				return amount.Zero(), fmt.Errorf("%w: pool holds %s, owed %s",
					ErrPoolExhausted, f.ledger.BalanceOf(f.address, model.Reward), owed)
			}
			return amount.Zero(), err
		}
		next := s.Position
		next.Yield = amount.Zero()
		f.registry.Restore(account, next)
		return owed, nil
	})
}

// Replenish moves already-issued reward tokens from an operator account into
// the pool. Nothing is minted.
func (f *Farm) Replenish(from model.Address, amt amount.Amount) error {
	return f.exec(model.OpReplenish, from, func(tx *txn, _ int64) (amount.Amount, error) {
		if amt.IsZero() {
			return amount.Zero(), ErrInvalidAmount
		}
		if err := f.transfer(tx, model.Reward, from, f.address, amt); err != nil {
			return amount.Zero(), err
		}
		return amt, nil
	})
}

// settle computes the account's settlement at now and arranges for its
// position to be restored if the call later fails.
func (f *Farm) settle(tx *txn, account model.Address, now int64) (model.Position, accrual.Settlement, error) {
	prev := f.registry.Get(account)
	s, err := accrual.Settle(prev, now, f.rate)
	if err != nil {
		return prev, accrual.Settlement{}, err
	}
	tx.onRollback(func() { f.registry.Restore(account, prev) })
	return prev, s, nil
}

// transfer moves funds on the ledger and registers the reverse transfer.
func (f *Farm) transfer(tx *txn, token model.Token, from, to model.Address, amt amount.Amount) error {
	if err := f.ledger.Transfer(token, from, to, amt); err != nil {
		return err
	}
	tx.onRollback(func() {
		if err := f.ledger.Transfer(token, to, from, amt); err != nil {
			f.logger.Error().Err(err).Str("token", token.String()).Msg("rollback transfer failed")
		}
	})
	return nil
}
