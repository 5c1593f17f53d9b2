package farm

import "sync"

// txn collects undo steps for a single farm call. If the call fails, every
// step that already applied is reverted in reverse order.
type txn struct {
	undo []func()
}

func (t *txn) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

// do runs fn and rolls back on error.
func (t *txn) do(fn func(*txn) error) error {
	if err := fn(t); err != nil {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		t.undo = nil
		return err
	}
	t.undo = nil
	return nil
}

// accountLocks serializes calls for the same account. Entries are never
// removed; there is one per participant, same as the registry.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *accountLocks) lock(key string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
