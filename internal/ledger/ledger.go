// Package ledger holds the set of story ids that have already been dispatched.
// Ids only ever enter the set; the ledger lives for the lifetime of the
// process and is not persisted.
package ledger

import (
	"sort"
	"sync"
)

// Ledger is a concurrency-safe set of story ids.
type Ledger struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{ids: make(map[string]struct{})}
}

// Contains reports whether id has been marked seen.
func (l *Ledger) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok
}

// Add marks ids as seen. Adding an existing id is a no-op.
func (l *Ledger) Add(ids ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		l.ids[id] = struct{}{}
	}
}

// Filter returns the entries of listing whose ids are not in the ledger.
// The input map is not modified.
func (l *Ledger) Filter(listing map[string]string) map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(listing))
	for id, url := range listing {
		if _, seen := l.ids[id]; !seen {
			out[id] = url
		}
	}
	return out
}

// Len returns the number of ids in the ledger.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

// Snapshot returns the ids in sorted order.
func (l *Ledger) Snapshot() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.ids))
	for id := range l.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
