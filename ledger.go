package eventapi

import (
	"slices"
	"sync"
)

// defaultSubscriptionLimit applies until the server announces its own limit.
const defaultSubscriptionLimit = 500

// Ledger is the ordered, duplicate-free set of active subscriptions, bounded
// by the limit announced in the server's hello. It is safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	limit   int
	entries []Subscription
}

// NewLedger creates an empty ledger with the given capacity.
func NewLedger(limit int) *Ledger {
	return &Ledger{limit: limit}
}

// Add appends s. It reports false without error when s is already present,
// and fails with a *CapacityExceededError when the ledger is full.
func (l *Ledger) Add(s Subscription) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries)+1 > l.limit {
		return false, &CapacityExceededError{Limit: l.limit}
	}
	if l.indexLocked(s) >= 0 {
		return false, nil
	}
	l.entries = append(l.entries, s)
	return true, nil
}

// Remove deletes s. It reports false without error when s is absent, and
// fails with ErrLedgerEmpty when there is nothing to remove.
func (l *Ledger) Remove(s Subscription) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return false, ErrLedgerEmpty
	}
	i := l.indexLocked(s)
	if i < 0 {
		return false, nil
	}
	l.entries = slices.Delete(l.entries, i, i+1)
	return true, nil
}

// Contains reports whether s is in the ledger.
func (l *Ledger) Contains(s Subscription) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexLocked(s) >= 0
}

// Snapshot returns a copy of the entries in insertion order.
func (l *Ledger) Snapshot() []Subscription {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.entries)
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Limit returns the current capacity.
func (l *Ledger) Limit() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limit
}

// SetLimit replaces the capacity. Existing entries are kept even when the
// new limit is lower; further adds fail until the ledger shrinks.
func (l *Ledger) SetLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
}

func (l *Ledger) indexLocked(s Subscription) int {
	return slices.IndexFunc(l.entries, s.Equal)
}
