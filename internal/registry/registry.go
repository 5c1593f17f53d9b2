// Package registry holds one stake position per participant.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"HodlFarm/internal/amount"
	"HodlFarm/internal/model"
)

// Registry is safe for concurrent use. Callers outside the farm package
// should treat it as read-only.
type Registry struct {
	mu        sync.RWMutex
	positions map[model.Address]model.Position
}

func New() *Registry {
	return &Registry{positions: make(map[model.Address]model.Position)}
}

// Get returns the account's position, or a zero position if it has none.
func (r *Registry) Get(account model.Address) model.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.positions[account]
}

// SetStake overwrites the staked amount and checkpoint, keeping unsettled yield.
func (r *Registry) SetStake(account model.Address, staked amount.Amount, checkpoint int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.positions[account]
	p.Staked = staked
	p.Checkpoint = checkpoint
	r.put(account, p)
}

// CreditYield adds amt to the account's unsettled yield.
func (r *Registry) CreditYield(account model.Address, amt amount.Amount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.positions[account]
	y, err := p.Yield.Add(amt)
	if err != nil {
		return fmt.Errorf("credit yield to %s: %w", account.Short(), err)
	}
	p.Yield = y
	r.put(account, p)
	return nil
}

// ClearYield zeroes the unsettled yield and returns what it held.
func (r *Registry) ClearYield(account model.Address) amount.Amount {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.positions[account]
	prev := p.Yield
	p.Yield = amount.Zero()
	r.put(account, p)
	return prev
}

// Restore replaces a position wholesale.
func (r *Registry) Restore(account model.Address, p model.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(account, p)
}

// Each calls fn for every position in address order.
func (r *Registry) Each(fn func(model.Address, model.Position)) {
	snap := r.Snapshot()
	keys := make([]model.Address, 0, len(snap))
	for a := range snap {
		keys = append(keys, a)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, a := range keys {
		fn(a, snap[a])
	}
}

// Snapshot copies every stored position.
func (r *Registry) Snapshot() map[model.Address]model.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[model.Address]model.Position, len(r.positions))
	for a, p := range r.positions {
		out[a] = p
	}
	return out
}

// put drops only the zero position. An exited account keeps its checkpoint so
// a later clock regression is still detected.
func (r *Registry) put(account model.Address, p model.Position) {
	if p == (model.Position{}) {
		delete(r.positions, account)
		return
	}
	r.positions[account] = p
}
