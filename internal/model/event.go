package model

import (
	"time"

	"HodlFarm/internal/amount"
)

// OperationKind names a farm operation.
type OperationKind string

const (
	OpInitialize OperationKind = "INITIALIZE"
	OpStake      OperationKind = "STAKE"
	OpUnstake    OperationKind = "UNSTAKE"
	OpWithdraw   OperationKind = "WITHDRAW_YIELD"
	OpReplenish  OperationKind = "REPLENISH"
)

// OperationEvent describes one completed or rejected farm call.
type OperationEvent struct {
	ID      string
	Kind    OperationKind
	Account Address
	// Amount is the collateral moved for stake/unstake, or reward for withdraw/replenish.
	Amount amount.Amount
	// Yield is the unsettled yield after the call.
	Yield amount.Amount
	OK    bool
	Error string
	At    time.Time
}
