// Package ledger keeps the fungible balance tables for the collateral and
// reward tokens. It knows nothing about staking.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"HodlFarm/internal/amount"
	"HodlFarm/internal/model"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownToken        = errors.New("unknown token")
)

// Ledger is safe for concurrent use. Every mutation is all-or-nothing.
type Ledger struct {
	mu       sync.RWMutex
	balances map[model.Token]map[model.Address]amount.Amount
	supply   map[model.Token]amount.Amount
}

// New returns an empty ledger with a table per token.
func New() *Ledger {
	l := &Ledger{
		balances: make(map[model.Token]map[model.Address]amount.Amount, len(model.Tokens)),
		supply:   make(map[model.Token]amount.Amount, len(model.Tokens)),
	}
	for _, t := range model.Tokens {
		l.balances[t] = make(map[model.Address]amount.Amount)
	}
	return l
}

// BalanceOf returns the current balance; unknown accounts hold zero.
func (l *Ledger) BalanceOf(account model.Address, token model.Token) amount.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[token][account]
}

// Supply returns the total amount ever issued for token.
func (l *Ledger) Supply(token model.Token) amount.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply[token]
}

// Transfer moves amt of token from one account to another. It fails with
// ErrInsufficientBalance, leaving both balances untouched, if from holds less
// than amt.
func (l *Ledger) Transfer(token model.Token, from, to model.Address, amt amount.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	table, ok := l.balances[token]
	if !ok {
		return ErrUnknownToken
	}
	if amt.IsZero() {
		return nil
	}
	fromBal, err := table[from].Sub(amt)
	if err != nil {
		return fmt.Errorf("%w: %s holds %s %s, needs %s",
			ErrInsufficientBalance, from.Short(), table[from], token, amt)
	}
	if from == to {
		return nil
	}
	toBal, err := table[to].Add(amt)
	if err != nil {
		return fmt.Errorf("credit %s: %w", to.Short(), err)
	}
	set(table, from, fromBal)
	set(table, to, toBal)
	return nil
}

// Issue creates amt of token in the to account and raises the recorded
// supply. It is only used while provisioning the farm.
func (l *Ledger) Issue(token model.Token, to model.Address, amt amount.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	table, ok := l.balances[token]
	if !ok {
		return ErrUnknownToken
	}
	supply, err := l.supply[token].Add(amt)
	if err != nil {
		return fmt.Errorf("issue %s: %w", token, err)
	}
	bal, err := table[to].Add(amt)
	if err != nil {
		return fmt.Errorf("issue %s: %w", token, err)
	}
	set(table, to, bal)
	l.supply[token] = supply
	return nil
}

// Holders returns every account with a non-zero balance of token, sorted.
func (l *Ledger) Holders(token model.Token) []model.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Address, 0, len(l.balances[token]))
	for a := range l.balances[token] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot copies the balance tables and supply counters.
func (l *Ledger) Snapshot() (map[model.Token]map[model.Address]amount.Amount, map[model.Token]amount.Amount) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balances := make(map[model.Token]map[model.Address]amount.Amount, len(l.balances))
	for t, table := range l.balances {
		cp := make(map[model.Address]amount.Amount, len(table))
		for a, v := range table {
			cp[a] = v
		}
		balances[t] = cp
	}
	supply := make(map[model.Token]amount.Amount, len(l.supply))
	for t, v := range l.supply {
		supply[t] = v
	}
	return balances, supply
}

// Restore replaces all balances and supply counters.
func (l *Ledger) Restore(balances map[model.Token]map[model.Address]amount.Amount, supply map[model.Token]amount.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range model.Tokens {
		table := make(map[model.Address]amount.Amount)
		for a, v := range balances[t] {
			set(table, a, v)
		}
		l.balances[t] = table
		if v, ok := supply[t]; ok {
			l.supply[t] = v
		} else {
			delete(l.supply, t)
		}
	}
}

// set drops zero balances so Holders stays meaningful.
func set(table map[model.Address]amount.Amount, a model.Address, v amount.Amount) {
	if v.IsZero() {
		delete(table, a)
		return
	}
	table[a] = v
}
