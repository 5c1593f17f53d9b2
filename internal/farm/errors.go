package farm

import (
	"errors"

	"HodlFarm/internal/accrual"
	"HodlFarm/internal/ledger"
)

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	ErrNotStaking          = errors.New("account has nothing staked")
	ErrNothingToWithdraw   = errors.New("no yield to withdraw")
	ErrPoolExhausted       = errors.New("reward pool exhausted")
	ErrInvalidCheckpoint   = accrual.ErrInvalidCheckpoint
	ErrInvalidAccount      = errors.New("invalid account")
	ErrNotInitialized      = errors.New("farm not initialized")
	ErrAlreadyInitialized  = errors.New("farm already initialized")
	ErrAddressMismatch     = errors.New("state file belongs to a different farm address")
	ErrStateLocked         = errors.New("state file is in use by another process")
)

// IsRetryable reports whether a failed call may succeed later without any
// change on the caller's side. Only an underfunded reward pool qualifies.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPoolExhausted)
}

// resultLabel classifies an operation outcome for metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrNotStaking):
		return "not_staking"
	case errors.Is(err, ErrNothingToWithdraw):
		return "nothing_to_withdraw"
	case errors.Is(err, ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, ErrInvalidCheckpoint):
		return "invalid_checkpoint"
	case errors.Is(err, ErrInvalidAccount):
		return "invalid_account"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	default:
		return "error"
	}
}
