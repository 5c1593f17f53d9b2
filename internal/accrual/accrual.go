// Package accrual computes reward owed to a stake position over time.
//
// Rates are 18-decimal fixed-point values expressing reward base units per
// staked base unit per second. All arithmetic truncates toward zero.
package accrual

import (
	"errors"
	"fmt"

	"HodlFarm/internal/amount"
	"HodlFarm/internal/model"
)

var ErrInvalidCheckpoint = errors.New("clock is behind position checkpoint")

// Settlement is the result of bringing a position up to a point in time.
type Settlement struct {
	// Position is the input position with Yield and Checkpoint advanced.
	Position model.Position
	// Accrued is the yield earned since the previous checkpoint.
	Accrued amount.Amount
}

// Accrue returns staked * rate * elapsed.
func Accrue(staked, rate amount.Amount, elapsed uint64) (amount.Amount, error) {
	if elapsed == 0 || staked.IsZero() || rate.IsZero() {
		return amount.Zero(), nil
	}
	units, err := staked.MulUint64(elapsed)
	if err != nil {
		return amount.Zero(), err
	}
	return units.MulFixed(rate)
}

// Settle accrues yield on p from its checkpoint up to now, using the stake
// that was in effect over that interval. It never mutates p.
func Settle(p model.Position, now int64, rate amount.Amount) (Settlement, error) {
	if now < p.Checkpoint {
		return Settlement{}, fmt.Errorf("%w: now %d, checkpoint %d", ErrInvalidCheckpoint, now, p.Checkpoint)
	}
	accrued, err := Accrue(p.Staked, rate, uint64(now-p.Checkpoint))
	if err != nil {
		return Settlement{}, fmt.Errorf("accrue: %w", err)
	}
	yield, err := p.Yield.Add(accrued)
	if err != nil {
		return Settlement{}, fmt.Errorf("accrue: %w", err)
	}
	p.Yield = yield
	p.Checkpoint = now
	return Settlement{Position: p, Accrued: accrued}, nil
}

// Preview returns the yield p would hold if settled at now. On clock
// regression or overflow it returns the already-settled yield.
func Preview(p model.Position, now int64, rate amount.Amount) amount.Amount {
	s, err := Settle(p, now, rate)
	if err != nil {
		return p.Yield
	}
	return s.Position.Yield
}
