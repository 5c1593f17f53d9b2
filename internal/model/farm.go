package model

import (
	"errors"
	"time"

	"HodlFarm/internal/amount"
)

var ErrUnknownToken = errors.New("unknown token")

// Position is a participant's stake record. A zero Position means not staking.
type Position struct {
	Staked     amount.Amount `json:"staked"`
	Checkpoint int64         `json:"checkpoint"`
	Yield      amount.Amount `json:"unsettled_yield"`
}

// IsStaking reports whether any collateral is currently staked.
func (p Position) IsStaking() bool { return !p.Staked.IsZero() }

// AccountView is everything a client polls for a single participant.
type AccountView struct {
	Address           Address       `json:"address"`
	CollateralBalance amount.Amount `json:"collateral_balance"`
	RewardBalance     amount.Amount `json:"reward_balance"`
	Staked            amount.Amount `json:"staked"`
	PendingYield      amount.Amount `json:"pending_yield"`
	IsStaking         bool          `json:"is_staking"`
}

// PoolStats summarizes the farm's holdings.
type PoolStats struct {
	RewardPool     amount.Amount `json:"reward_pool"`
	FarmCollateral amount.Amount `json:"farm_collateral"`
	TotalStaked    amount.Amount `json:"total_staked"`
	TotalPending   amount.Amount `json:"total_pending"`
	Stakers        int           `json:"stakers"`
	At             time.Time     `json:"at"`
}

// Shortfall reports how much pending yield the pool cannot cover.
func (s PoolStats) Shortfall() amount.Amount {
	d, err := s.TotalPending.Sub(s.RewardPool)
	if err != nil {
		return amount.Zero()
	}
	return d
}

// FarmState is the persisted snapshot of the whole farm.
type FarmState struct {
	Initialized bool                                `json:"initialized"`
	Address     Address                             `json:"farm_address"`
	RewardRate  amount.Amount                       `json:"reward_rate"`
	Balances    map[Token]map[Address]amount.Amount `json:"balances"`
	Supply      map[Token]amount.Amount             `json:"supply"`
	Positions   map[Address]Position                `json:"positions"`
	UpdatedAt   time.Time                           `json:"updated_at"`
}
