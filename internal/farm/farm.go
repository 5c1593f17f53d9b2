// Package farm sequences settlement, ledger transfers and registry updates
// for the three externally invoked operations: stake, unstake and
// withdraw-yield. Each call is atomic: it either fully applies or leaves
// every balance and position exactly as it found them.
package farm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"HodlFarm/internal/amount"
	"HodlFarm/internal/ledger"
	"HodlFarm/internal/metrics"
	"HodlFarm/internal/model"
	"HodlFarm/internal/recorder"
	"HodlFarm/internal/registry"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Farm owns the ledger and registry. It is safe for concurrent use: calls
// for the same account serialize, calls for different accounts do not.
type Farm struct {
	ledger   *ledger.Ledger
	registry *registry.Registry
	address  model.Address
	rate     amount.Amount

	// Operations hold stateMu shared plus their account lock; snapshots and
	// initialization hold it exclusively.
	stateMu     sync.RWMutex
	locks       accountLocks
	initialized bool

	now       func() time.Time
	logger    zerolog.Logger
	recorder  recorder.Recorder
	metrics   *metrics.Metrics
	statePath string
	saveMu    sync.Mutex
	fileLock  *flock.Flock
}

type Option func(*Farm)

// WithClock replaces time.Now. The clock must not run backwards for any
// account; calls observing a regression fail with ErrInvalidCheckpoint.
func WithClock(now func() time.Time) Option {
	return func(f *Farm) { f.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(f *Farm) { f.logger = logger.With().Str("component", "farm").Logger() }
}

func WithRecorder(r recorder.Recorder) Option {
	return func(f *Farm) { f.recorder = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Farm) { f.metrics = m }
}

// WithStateFile makes every successful call write a JSON snapshot to path.
func WithStateFile(path string) Option {
	return func(f *Farm) { f.statePath = path }
}

// New creates an empty, uninitialized farm identified on the ledger by
// address and paying rate reward units per staked unit per second.
func New(address model.Address, rate amount.Amount, opts ...Option) *Farm {
	f := &Farm{
		ledger:   ledger.New(),
		registry: registry.New(),
		address:  address,
		rate:     rate,
		now:      time.Now,
		logger:   zerolog.Nop(),
		recorder: recorder.NewNoopRecorder(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open restores a farm from the state file at path, or returns a fresh
// uninitialized farm if the file does not exist yet. The farm holds an
// exclusive lock on path until Close, so a second process opening the same
// state fails with ErrStateLocked instead of overwriting it.
func Open(path string, address model.Address, rate amount.Amount, opts ...Option) (*Farm, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock state file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrStateLocked, lock.Path())
	}

	f, err := open(path, address, rate, opts...)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	f.fileLock = lock
	return f, nil
}

func open(path string, address model.Address, rate amount.Amount, opts ...Option) (*Farm, error) {
	state, err := LoadState(path)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	f := New(address, rate, append(opts, WithStateFile(path))...)
	if !state.Initialized {
		return f, nil
	}
	if state.Address != address {
		return nil, fmt.Errorf("%w: %s, configured %s", ErrAddressMismatch, state.Address, address)
	}
	if !state.RewardRate.Eq(rate) {
		f.logger.Warn().
			Str("previous", state.RewardRate.String()).
			Str("current", rate.String()).
			Msg("reward rate changed since last run; unsettled intervals accrue at the new rate")
	}
	f.restore(state)
	f.logger.Info().Str("path", path).Int("positions", len(state.Positions)).Msg("farm state restored")
	return f, nil
}

// Close releases the state file lock taken by Open. The farm must not be
// used afterwards.
func (f *Farm) Close() error {
	if f.fileLock == nil {
		return nil
	}
	return f.fileLock.Unlock()
}

// Genesis describes the one-time provisioning of the farm.
type Genesis struct {
	// RewardPool is issued straight to the farm address.
	RewardPool amount.Amount
	// Treasury optionally receives TreasuryReward for later Replenish calls.
	Treasury       model.Address
	TreasuryReward amount.Amount
	// Collateral seeds participant balances deposited from outside.
	Collateral map[model.Address]amount.Amount
}

// Initialize provisions the reward pool and genesis balances. It can only
// succeed once per farm.
func (f *Farm) Initialize(g Genesis) error {
	err := f.initialize(g)
	f.finish(model.OpInitialize, f.address, g.RewardPool, err)
	return err
}

func (f *Farm) initialize(g Genesis) error {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()

	if f.initialized {
		return ErrAlreadyInitialized
	}
	if g.RewardPool.IsZero() {
		return fmt.Errorf("%w: reward pool", ErrInvalidAmount)
	}
	if !g.TreasuryReward.IsZero() && (g.Treasury == "" || g.Treasury == f.address) {
		return fmt.Errorf("%w: treasury", ErrInvalidAccount)
	}
	for a := range g.Collateral {
		if a == f.address {
			return fmt.Errorf("%w: genesis collateral for farm address", ErrInvalidAccount)
		}
	}

	balances, supply := f.ledger.Snapshot()
	tx := &txn{}
	return tx.do(func(tx *txn) error {
		tx.onRollback(func() { f.ledger.Restore(balances, supply) })
		if err := f.ledger.Issue(model.Reward, f.address, g.RewardPool); err != nil {
			return err
		}
		if !g.TreasuryReward.IsZero() {
			if err := f.ledger.Issue(model.Reward, g.Treasury, g.TreasuryReward); err != nil {
				return err
			}
		}
		for a, v := range g.Collateral {
			if err := f.ledger.Issue(model.Collateral, a, v); err != nil {
				return err
			}
		}
		f.initialized = true
		return nil
	})
}

// Initialized reports whether Initialize has succeeded.
func (f *Farm) Initialized() bool {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return f.initialized
}

func (f *Farm) Address() model.Address { return f.address }

func (f *Farm) Rate() amount.Amount { return f.rate }

// exec runs one account-scoped call under the account lock and inside a
// txn, then records the outcome. fn returns the amount it moved.
func (f *Farm) exec(kind model.OperationKind, account model.Address, fn func(tx *txn, now int64) (amount.Amount, error)) error {
	var moved amount.Amount
	err := func() error {
		if account == "" || account == f.address {
			return fmt.Errorf("%w: %q", ErrInvalidAccount, account)
		}
		f.stateMu.RLock()
		defer f.stateMu.RUnlock()
		if !f.initialized {
			return ErrNotInitialized
		}
		unlock := f.locks.lock(string(account))
		defer unlock()

		now := f.now().Unix()
		tx := &txn{}
		return tx.do(func(tx *txn) error {
			var err error
			moved, err = fn(tx, now)
			return err
		})
	}()
	f.finish(kind, account, moved, err)
	return err
}

// finish logs, counts and records a call, and persists state on success.
func (f *Farm) finish(kind model.OperationKind, account model.Address, moved amount.Amount, err error) {
	evt := &model.OperationEvent{
		ID:      uuid.NewString(),
		Kind:    kind,
		Account: account,
		Amount:  moved,
		Yield:   f.registry.Get(account).Yield,
		OK:      err == nil,
		At:      f.now(),
	}
	if err != nil {
		evt.Error = err.Error()
	}

	if f.metrics != nil {
		f.metrics.ObserveOperation(kind, resultLabel(err))
	}

	switch {
	case err == nil:
		f.logger.Info().
			Str("op", string(kind)).
			Str("account", account.Short()).
			Str("amount", moved.String()).
			Msg("operation applied")
	case IsRetryable(err):
		f.logger.Warn().Str("op", string(kind)).Str("account", account.Short()).Err(err).Msg("operation deferred")
	default:
		f.logger.Debug().Str("op", string(kind)).Str("account", account.Short()).Err(err).Msg("operation rejected")
	}

	if rerr := f.recorder.RecordOperation(evt); rerr != nil {
		f.logger.Error().Err(rerr).Msg("record operation")
	}

	if err != nil {
		return
	}
	if f.metrics != nil {
		f.metrics.SetRewardPool(f.PoolBalance())
		if kind == model.OpWithdraw {
			f.metrics.AddYieldPaid(moved)
		}
	}
	if f.statePath != "" {
		if serr := f.Save(); serr != nil {
			f.logger.Error().Err(serr).Msg("failed to save farm state")
		}
	}
}
